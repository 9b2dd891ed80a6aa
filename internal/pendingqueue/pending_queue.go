// Package pendingqueue puts a retry Run back in front of workers once the
// resolver has appended it. It is deliberately separate from the advisory
// queue: a pending message means "a worker may now claim this", not
// "check whether a claim expired".
package pendingqueue

import (
	"context"

	"github.com/clusterq/claimresolver/internal/model"
)

// PendingQueue is consumed by workers polling for claimable runs.
type PendingQueue interface {
	PutPendingMessage(ctx context.Context, task *model.Task, runID int) error
}
