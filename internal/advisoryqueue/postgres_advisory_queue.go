package advisoryqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// invisibilityWindow is how long a dispatched-but-unacknowledged message
// stays hidden from other pollers before becoming visible again for
// redelivery.
const invisibilityWindow = 5 * time.Minute

// PostgresAdvisoryQueue backs the advisory queue with a row per
// (taskId, runId, takenUntil), visible once visible_at <= now(). Dispatch
// uses SELECT ... FOR UPDATE SKIP LOCKED so concurrent pollers never hand
// out the same row twice, and Remove is a plain idempotent DELETE.
type PostgresAdvisoryQueue struct {
	db *sql.DB
}

func NewPostgresAdvisoryQueue(db *sql.DB) *PostgresAdvisoryQueue {
	return &PostgresAdvisoryQueue{db: db}
}

func (q *PostgresAdvisoryQueue) PollClaimQueue(ctx context.Context) ([]AdvisoryMessage, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("poll claim queue: begin: %w", err)
	}
	defer tx.Rollback()

	const selectQuery = `
		SELECT task_id, run_id, taken_until
		FROM resolver_schema.advisory_messages
		WHERE visible_at <= now()
		ORDER BY visible_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.QueryContext(ctx, selectQuery, MaxBatchSize)
	if err != nil {
		return nil, fmt.Errorf("poll claim queue: select: %w", err)
	}

	type candidate struct {
		taskID     string
		runID      int
		takenUntil time.Time
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.taskID, &c.runID, &c.takenUntil); err != nil {
			rows.Close()
			return nil, fmt.Errorf("poll claim queue: scan: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("poll claim queue: %w", err)
	}
	rows.Close()

	if len(candidates) == 0 {
		return nil, tx.Commit()
	}

	const bumpQuery = `
		UPDATE resolver_schema.advisory_messages
		SET visible_at = now() + make_interval(secs => $4)
		WHERE task_id = $1 AND run_id = $2 AND taken_until = $3
	`
	messages := make([]AdvisoryMessage, 0, len(candidates))
	for _, c := range candidates {
		if _, err := tx.ExecContext(ctx, bumpQuery, c.taskID, c.runID, c.takenUntil, invisibilityWindow.Seconds()); err != nil {
			return nil, fmt.Errorf("poll claim queue: bump visibility: %w", err)
		}
		c := c
		messages = append(messages, AdvisoryMessage{
			TaskID:     c.taskID,
			RunID:      c.runID,
			TakenUntil: c.takenUntil,
			Remove:     func(ctx context.Context) error { return q.remove(ctx, c.taskID, c.runID, c.takenUntil) },
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("poll claim queue: commit: %w", err)
	}
	return messages, nil
}

func (q *PostgresAdvisoryQueue) remove(ctx context.Context, taskID string, runID int, takenUntil time.Time) error {
	const deleteQuery = `
		DELETE FROM resolver_schema.advisory_messages
		WHERE task_id = $1 AND run_id = $2 AND taken_until = $3
	`
	// A second Remove() call, or one racing a prior successful delete,
	// affects zero rows — that is success, not an error. Idempotence is
	// load-bearing for the at-least-once delivery model.
	_, err := q.db.ExecContext(ctx, deleteQuery, taskID, runID, takenUntil)
	if err != nil {
		return fmt.Errorf("remove advisory message %s/%d: %w", taskID, runID, err)
	}
	return nil
}
