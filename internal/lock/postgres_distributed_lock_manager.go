package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DefaultTimeout bounds an Acquire/Release call when Timeout is unset. The
// per-call timeout is always applied on top of the caller's ctx, so an
// earlier deadline on ctx still wins.
const DefaultTimeout = 5 * time.Second

// PostgresDistributedLockManager backs DistributedLockManager with
// pg_advisory_lock/pg_advisory_unlock. Timeout, if zero, falls back to
// DefaultTimeout.
type PostgresDistributedLockManager struct {
	db      *sql.DB
	Timeout time.Duration
}

func NewPostgresDistributedLockManager(db *sql.DB) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{
		db:      db,
		Timeout: DefaultTimeout,
	}
}

func (l *PostgresDistributedLockManager) timeout() time.Duration {
	if l.Timeout > 0 {
		return l.Timeout
	}
	return DefaultTimeout
}

func (l *PostgresDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout())
	defer cancel()

	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	return nil
}

func (l *PostgresDistributedLockManager) Release(ctx context.Context, lockID int) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout())
	defer cancel()

	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}
