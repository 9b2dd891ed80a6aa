// Package store defines the task store contract: a conditional load keyed
// on the claim deadline, and a compare-and-swap mutation. Every race in
// this system (reclaim vs. resolve, resolve vs. expand) is resolved here,
// not by locking.
package store

import (
	"context"
	"time"

	"github.com/clusterq/claimresolver/internal/model"
)

// TaskModifier inspects a Task snapshot and returns the Task it wants to
// persist along with whether anything actually changed. It must be a pure
// function of the snapshot: Modify may call it more than once if the CAS
// write loses a race.
type TaskModifier func(*model.Task) (*model.Task, bool)

// TaskStore is the resolver's only shared mutable resource.
type TaskStore interface {
	// Query returns the task keyed by taskID only if its current
	// TakenUntil equals takenUntil exactly. A nil, nil result means "no
	// match" (task gone, reclaimed, or already resolved) — a benign miss,
	// not an error.
	Query(ctx context.Context, taskID string, takenUntil time.Time) (*model.Task, error)

	// Modify applies modifier to task under compare-and-swap, retrying
	// with a freshly reloaded snapshot whenever another writer won the
	// race, until modifier itself reports no change (false) or the
	// write succeeds. Returns the final snapshot either way.
	Modify(ctx context.Context, task *model.Task, modifier TaskModifier) (*model.Task, error)

	// ScanExpiredClaims supports the reconciliation sweep (internal/sweep):
	// it finds tasks with a running run whose TakenUntil has already
	// passed, independent of whether an advisory message was ever seen
	// for them — a backstop discovery path feeding the same handler.
	ScanExpiredClaims(ctx context.Context, limit int) ([]ExpiredClaim, error)
}

// ExpiredClaim is one candidate the sweep hands to the message handler as
// if it had arrived from the advisory queue.
type ExpiredClaim struct {
	TaskID     string
	RunID      int
	TakenUntil time.Time
}
