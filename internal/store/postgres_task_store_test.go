package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterq/claimresolver/internal/model"
	"github.com/clusterq/claimresolver/internal/state"
)

func TestNewPostgresTaskStore(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTaskStore(db)
	require.NotNil(t, s)
}

func TestPostgresTaskStore_Query_NoMatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTaskStore(db)
	takenUntil := time.Now()

	mock.ExpectQuery("SELECT task_group_id").
		WithArgs("T1", takenUntil).
		WillReturnRows(sqlmock.NewRows([]string{
			"task_group_id", "scheduler_id", "deadline", "retries_left", "taken_until", "runs", "routes", "version",
		}))

	task, err := s.Query(context.Background(), "T1", takenUntil)
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_Query_Match(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTaskStore(db)
	takenUntil := time.Now().Truncate(time.Second)
	deadline := takenUntil.Add(time.Hour)

	runsJSON := `[{"state":"running","reason_created":"scheduled","taken_until":"` + takenUntil.Format(time.RFC3339) + `","scheduled":"` + takenUntil.Format(time.RFC3339) + `"}]`

	mock.ExpectQuery("SELECT task_group_id").
		WithArgs("T1", takenUntil).
		WillReturnRows(sqlmock.NewRows([]string{
			"task_group_id", "scheduler_id", "deadline", "retries_left", "taken_until", "runs", "routes", "version",
		}).AddRow("TG1", "sched-1", deadline, 2, takenUntil, []byte(runsJSON), []byte(`["route1"]`), int64(1)))

	task, err := s.Query(context.Background(), "T1", takenUntil)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "T1", task.TaskID)
	assert.Equal(t, 2, task.RetriesLeft)
	require.Len(t, task.Runs, 1)
	assert.Equal(t, state.RunRunning, task.Runs[0].State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_Modify_NoOp(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTaskStore(db)
	task := &model.Task{TaskID: "T1", Version: 3}

	modifier := func(t *model.Task) (*model.Task, bool) { return t, false }

	updated, err := s.Modify(context.Background(), task, modifier)
	require.NoError(t, err)
	assert.Same(t, task, updated)
}

func TestPostgresTaskStore_Modify_SucceedsFirstTry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTaskStore(db)
	task := &model.Task{TaskID: "T1", Version: 3, Routes: []string{}}

	mock.ExpectExec("UPDATE resolver_schema.tasks").
		WithArgs(task.Deadline, sqlmock.AnyArg(), task.TakenUntil, sqlmock.AnyArg(), sqlmock.AnyArg(), "T1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	calls := 0
	modifier := func(t *model.Task) (*model.Task, bool) {
		calls++
		next := t.Clone()
		next.RetriesLeft = 1
		return next, true
	}

	updated, err := s.Modify(context.Background(), task, modifier)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(4), updated.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_Modify_RetriesOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTaskStore(db)
	task := &model.Task{TaskID: "T1", Version: 1, Routes: []string{}}

	// First write loses the CAS race.
	mock.ExpectExec("UPDATE resolver_schema.tasks").
		WithArgs(task.Deadline, sqlmock.AnyArg(), task.TakenUntil, sqlmock.AnyArg(), sqlmock.AnyArg(), "T1", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery("SELECT task_group_id").
		WithArgs("T1").
		WillReturnRows(sqlmock.NewRows([]string{
			"task_group_id", "scheduler_id", "deadline", "retries_left", "taken_until", "runs", "routes", "version",
		}).AddRow("TG1", "sched-1", task.Deadline, 0, task.TakenUntil, []byte(`[]`), []byte(`[]`), int64(2)))

	// Second attempt, against the reloaded version, succeeds.
	mock.ExpectExec("UPDATE resolver_schema.tasks").
		WithArgs(task.Deadline, sqlmock.AnyArg(), task.TakenUntil, sqlmock.AnyArg(), sqlmock.AnyArg(), "T1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	calls := 0
	modifier := func(t *model.Task) (*model.Task, bool) {
		calls++
		next := t.Clone()
		next.RetriesLeft = 5
		return next, true
	}

	updated, err := s.Modify(context.Background(), task, modifier)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(3), updated.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
