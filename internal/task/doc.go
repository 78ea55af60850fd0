// Package task runs background jobs on named in-process queues.
//
// Tasks are persisted through a TaskStore before they are queued, so work
// that was pending or in flight when the process stopped is rebuilt through
// the Registry and re-queued on the next start. Each queue has its own
// worker count and every worker handles one task at a time. Failed
// executions are retried with a fixed delay unless the error is permanent.
package task
