// Package advisoryqueue is the time-delayed advisory queue: a message for
// (taskId, runId, takenUntil) only becomes visible once takenUntil has
// passed, turning claim expiration into queue-driven work. The real
// production system backs this with an Azure-queue-over-Postgres shim
// that's out of scope here; this package implements the same
// visibility-delay contract directly against PostgreSQL, which is the
// closest in-scope equivalent.
package advisoryqueue

import (
	"context"
	"time"
)

// AdvisoryMessage is one potential expiration event. Remove is the
// idempotent acknowledge: calling it more than once, or after the
// underlying row is already gone, is not an error.
type AdvisoryMessage struct {
	TaskID     string
	RunID      int
	TakenUntil time.Time
	Remove     func(ctx context.Context) error
}

// AdvisoryQueue hands out batches of up to 32 visible messages.
type AdvisoryQueue interface {
	PollClaimQueue(ctx context.Context) ([]AdvisoryMessage, error)
}

// MaxBatchSize is the fixed per-poll batch ceiling.
const MaxBatchSize = 32
