// Package api holds the HTTP handlers of the REST API. Handlers decode and
// validate requests, call the services and map service errors to status
// codes and safe messages. Routing lives in cmd/server.
package api
