package deptracker

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresDependencyTracker records task resolutions in an append-only
// audit table and maintains a per-group exception count. The count is
// bumped with an upsert (INSERT ... ON CONFLICT DO UPDATE) only when the
// audit insert actually added a row, so a repeated call for the same task
// leaves both tables unchanged.
type PostgresDependencyTracker struct {
	db *sql.DB
}

func NewPostgresDependencyTracker(db *sql.DB) *PostgresDependencyTracker {
	return &PostgresDependencyTracker{db: db}
}

func (t *PostgresDependencyTracker) ResolveTask(ctx context.Context, taskID, taskGroupID, schedulerID, resolution string) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("resolve task %s: begin: %w", taskID, err)
	}
	defer tx.Rollback()

	const insertAudit = `
		INSERT INTO resolver_schema.task_group_resolutions (task_id, task_group_id, scheduler_id, resolution, resolved_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (task_id) DO NOTHING
	`
	res, err := tx.ExecContext(ctx, insertAudit, taskID, taskGroupID, schedulerID, resolution)
	if err != nil {
		return fmt.Errorf("resolve task %s: insert audit: %w", taskID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve task %s: %w", taskID, err)
	}
	if affected == 0 {
		// Already recorded by a prior attempt — the ownership check
		// upstream should make this unreachable, but the tracker's own
		// idempotence means a redelivered call is still harmless.
		return tx.Commit()
	}

	const bumpGroupCounter = `
		INSERT INTO resolver_schema.task_group_counters (task_group_id, exception_count)
		VALUES ($1, 1)
		ON CONFLICT (task_group_id) DO UPDATE SET exception_count = resolver_schema.task_group_counters.exception_count + 1
	`
	if _, err := tx.ExecContext(ctx, bumpGroupCounter, taskGroupID); err != nil {
		return fmt.Errorf("resolve task %s: bump group counter: %w", taskID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("resolve task %s: commit: %w", taskID, err)
	}
	return nil
}
