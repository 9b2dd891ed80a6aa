// Package notify publishes the two user-observable notifications the
// resolver ever emits: task-pending (retry path) and task-exception
// (terminal path). Exactly-one-effect for these is enforced upstream by
// the message handler's post-mutation ownership check — this package
// only has to deliver, not dedupe.
package notify

import "context"

// TaskPendingPayload is published on the retry path.
type TaskPendingPayload struct {
	Status string `json:"status"`
	RunID  int    `json:"runId"`
}

// TaskExceptionPayload is published on the terminal path.
type TaskExceptionPayload struct {
	Status      string `json:"status"`
	RunID       int    `json:"runId"`
	WorkerGroup string `json:"workerGroup"`
	WorkerID    string `json:"workerId"`
}

// Publisher fans a payload out to every route a task is registered
// against.
type Publisher interface {
	TaskPending(ctx context.Context, taskID string, payload TaskPendingPayload, routes []string) error
	TaskException(ctx context.Context, taskID string, payload TaskExceptionPayload, routes []string) error
}
