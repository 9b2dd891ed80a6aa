package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clusterq/claimresolver/internal/model"
	"github.com/clusterq/claimresolver/internal/state"
)

// maxCASAttempts bounds the retry-on-conflict loop in Modify. An explicit
// version-token CAS needs a bound so a hot task under heavy contention
// can't spin the resolver forever.
const maxCASAttempts = 8

// PostgresTaskStore persists Task/Run records as a single jsonb column per
// task, so one CAS write rewrites the whole run sequence atomically.
type PostgresTaskStore struct {
	db *sql.DB
}

func NewPostgresTaskStore(db *sql.DB) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

type runRow struct {
	State          string    `json:"state"`
	ReasonCreated  string    `json:"reason_created"`
	ReasonResolved string    `json:"reason_resolved,omitempty"`
	TakenUntil     time.Time `json:"taken_until"`
	WorkerGroup    string    `json:"worker_group,omitempty"`
	WorkerID       string    `json:"worker_id,omitempty"`
	Scheduled      time.Time `json:"scheduled"`
	Resolved       time.Time `json:"resolved,omitempty"`
}

func (r *PostgresTaskStore) Query(ctx context.Context, taskID string, takenUntil time.Time) (*model.Task, error) {
	const query = `
		SELECT task_group_id, scheduler_id, deadline, retries_left, taken_until, runs, routes, version
		FROM resolver_schema.tasks
		WHERE task_id = $1 AND taken_until = $2
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, taskID, takenUntil)
	task, err := scanTask(row, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task %s: %w", taskID, err)
	}
	return task, nil
}

func (r *PostgresTaskStore) loadByID(ctx context.Context, taskID string) (*model.Task, error) {
	const query = `
		SELECT task_group_id, scheduler_id, deadline, retries_left, taken_until, runs, routes, version
		FROM resolver_schema.tasks
		WHERE task_id = $1
	`
	row := r.db.QueryRowContext(ctx, query, taskID)
	task, err := scanTask(row, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reload task %s: %w", taskID, err)
	}
	return task, nil
}

func (r *PostgresTaskStore) Modify(ctx context.Context, task *model.Task, modifier TaskModifier) (*model.Task, error) {
	current := task

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		next, changed := modifier(current)
		if !changed {
			return current, nil
		}

		runsJSON, err := marshalRuns(next.Runs)
		if err != nil {
			return nil, fmt.Errorf("marshal runs for task %s: %w", task.TaskID, err)
		}
		routesJSON, err := json.Marshal(next.Routes)
		if err != nil {
			return nil, fmt.Errorf("marshal routes for task %s: %w", task.TaskID, err)
		}

		const update = `
			UPDATE resolver_schema.tasks
			SET deadline = $1, retries_left = $2, taken_until = $3, runs = $4, routes = $5, version = version + 1
			WHERE task_id = $6 AND version = $7
		`
		result, err := r.db.ExecContext(ctx, update,
			next.Deadline, next.RetriesLeft, next.TakenUntil, runsJSON, routesJSON,
			task.TaskID, current.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("modify task %s: %w", task.TaskID, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("modify task %s: %w", task.TaskID, err)
		}
		if affected == 1 {
			next.Version = current.Version + 1
			return next, nil
		}

		// Lost the CAS race: someone else wrote this task between our
		// load and our write. Reload and let the modifier decide again
		// from the fresh snapshot — this is what makes the modifier's
		// purity requirement load-bearing.
		fresh, err := r.loadByID(ctx, task.TaskID)
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			// Task vanished between load and write; nothing left to
			// modify. Return the last known snapshot unchanged so the
			// caller's post-mutation fan-out check simply finds nothing
			// to do.
			return current, nil
		}
		current = fresh
	}

	return nil, fmt.Errorf("modify task %s: exceeded %d CAS attempts", task.TaskID, maxCASAttempts)
}

func (r *PostgresTaskStore) ScanExpiredClaims(ctx context.Context, limit int) ([]ExpiredClaim, error) {
	const query = `
		SELECT task_id, runs, taken_until
		FROM resolver_schema.tasks
		WHERE taken_until <> $1 AND taken_until <= now()
		ORDER BY taken_until ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, model.NoClaim, limit)
	if err != nil {
		return nil, fmt.Errorf("scan expired claims: %w", err)
	}
	defer rows.Close()

	var claims []ExpiredClaim
	for rows.Next() {
		var taskID string
		var runsJSON []byte
		var takenUntil time.Time
		if err := rows.Scan(&taskID, &runsJSON, &takenUntil); err != nil {
			return nil, fmt.Errorf("scan expired claims: %w", err)
		}

		var rows2 []runRow
		if err := json.Unmarshal(runsJSON, &rows2); err != nil {
			return nil, fmt.Errorf("scan expired claims: unmarshal runs for %s: %w", taskID, err)
		}
		runID := -1
		for i, rr := range rows2 {
			if rr.State == "running" && rr.TakenUntil.Equal(takenUntil) {
				runID = i
				break
			}
		}
		if runID == -1 {
			continue
		}
		claims = append(claims, ExpiredClaim{TaskID: taskID, RunID: runID, TakenUntil: takenUntil})
	}
	return claims, rows.Err()
}

func scanTask(row *sql.Row, taskID string) (*model.Task, error) {
	var (
		taskGroupID string
		schedulerID string
		deadline    time.Time
		retriesLeft int
		takenUntil  time.Time
		runsJSON    []byte
		routesJSON  []byte
		version     int64
	)

	if err := row.Scan(&taskGroupID, &schedulerID, &deadline, &retriesLeft, &takenUntil, &runsJSON, &routesJSON, &version); err != nil {
		return nil, err
	}

	runs, err := unmarshalRuns(runsJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal runs for %s: %w", taskID, err)
	}

	var routes []string
	if len(routesJSON) > 0 {
		if err := json.Unmarshal(routesJSON, &routes); err != nil {
			return nil, fmt.Errorf("unmarshal routes for %s: %w", taskID, err)
		}
	}

	return &model.Task{
		TaskID:      taskID,
		TaskGroupID: taskGroupID,
		SchedulerID: schedulerID,
		Deadline:    deadline,
		RetriesLeft: retriesLeft,
		TakenUntil:  takenUntil,
		Runs:        runs,
		Routes:      routes,
		Version:     version,
	}, nil
}

func marshalRuns(runs []model.Run) ([]byte, error) {
	out := make([]runRow, len(runs))
	for i, r := range runs {
		out[i] = runRow{
			State:          string(r.State),
			ReasonCreated:  string(r.ReasonCreated),
			ReasonResolved: string(r.ReasonResolved),
			TakenUntil:     r.TakenUntil,
			WorkerGroup:    r.WorkerGroup,
			WorkerID:       r.WorkerID,
			Scheduled:      r.Scheduled,
			Resolved:       r.Resolved,
		}
	}
	return json.Marshal(out)
}

func unmarshalRuns(data []byte) ([]model.Run, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rows []runRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	runs := make([]model.Run, len(rows))
	for i, rr := range rows {
		runs[i] = model.Run{
			State:          state.RunState(rr.State),
			ReasonCreated:  state.ReasonCreated(rr.ReasonCreated),
			ReasonResolved: state.ReasonResolved(rr.ReasonResolved),
			TakenUntil:     rr.TakenUntil,
			WorkerGroup:    rr.WorkerGroup,
			WorkerID:       rr.WorkerID,
			Scheduled:      rr.Scheduled,
			Resolved:       rr.Resolved,
		}
	}
	return runs, nil
}
