// Package events carries task requests from services to the task layer.
//
// Services emit a TaskRequestEvent instead of importing the task runner;
// the task package registers a handler that turns each event into a queued
// task with the same id.
package events
