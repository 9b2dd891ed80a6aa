// Package lock provides the distributed advisory lock used to gate the
// reconciliation sweep (internal/sweep) across horizontally-scaled
// resolver instances. The queue-driven resolution path (internal/resolver)
// never needs a lock: ownership there is enforced by the task store's
// compare-and-swap.
package lock

import "context"

// DistributedLockManager acquires and releases a named advisory lock.
// Implementations bound their own work to ctx's deadline/cancellation.
type DistributedLockManager interface {
	Acquire(ctx context.Context, lockID int) error
	Release(ctx context.Context, lockID int) error
}
