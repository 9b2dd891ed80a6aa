package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/clusterq/claimresolver/internal/advisoryqueue"
	"github.com/clusterq/claimresolver/internal/deptracker"
	"github.com/clusterq/claimresolver/internal/errs"
	"github.com/clusterq/claimresolver/internal/model"
	"github.com/clusterq/claimresolver/internal/notify"
	"github.com/clusterq/claimresolver/internal/pendingqueue"
	"github.com/clusterq/claimresolver/internal/state"
	"github.com/clusterq/claimresolver/internal/store"
	"github.com/clusterq/claimresolver/internal/telemetry"
)

// StatusException and StatusPending are the notification payload "status"
// values taskPending/taskException carry.
const (
	StatusPending   = "pending"
	StatusException = "exception"
)

// MessageHandler runs the conditional load, the guarded mutation, and the
// ownership-gated fan-out. It is the one place in the system that decides
// whether a claim has truly expired.
type MessageHandler struct {
	Store        store.TaskStore
	PendingQueue pendingqueue.PendingQueue
	Publisher    notify.Publisher
	DepTracker   deptracker.DependencyTracker
	Logger       telemetry.Logger
	Errors       telemetry.ErrorReporter

	// Now is overridable for tests; production callers leave it nil and
	// get time.Now.
	Now func() time.Time
}

func (h *MessageHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Handle runs the full load-mutate-fanout algorithm for one advisory
// message. A non-nil return means a transient failure: the caller must
// not acknowledge, so that redelivery retries after the queue's
// invisibility window. Every other outcome — benign miss, data integrity
// incident, or a completed transition — acknowledges internally before
// returning nil.
func (h *MessageHandler) Handle(ctx context.Context, msg advisoryqueue.AdvisoryMessage) error {
	// Step 1 — conditional load.
	task, err := h.Store.Query(ctx, msg.TaskID, msg.TakenUntil)
	if err != nil {
		return fmt.Errorf("handle %s/%d: query: %w", msg.TaskID, msg.RunID, err)
	}
	if task == nil {
		// Benign miss: the run was reclaimed, completed, or resolved by
		// another path. Nothing to do.
		return h.ack(ctx, msg)
	}
	if !task.TakenUntil.Equal(msg.TakenUntil) {
		h.Errors.ReportError(&errs.DataIntegrityError{
			TaskID: msg.TaskID,
			RunID:  msg.RunID,
			Detail: fmt.Sprintf("conditional load predicate ignored: loaded takenUntil=%s, message takenUntil=%s", task.TakenUntil, msg.TakenUntil),
		}, telemetry.SeverityError)
		return h.ack(ctx, msg)
	}

	// Step 2 — guarded mutation.
	var integrityIssue error
	modifier := h.claimExpiredModifier(msg, &integrityIssue)
	updated, err := h.Store.Modify(ctx, task, modifier)
	if err != nil {
		return fmt.Errorf("handle %s/%d: modify: %w", msg.TaskID, msg.RunID, err)
	}
	if integrityIssue != nil {
		h.Errors.ReportError(integrityIssue, telemetry.SeverityError)
	}

	// Step 3 — post-mutation fan-out.
	if err := h.fanOut(ctx, updated, msg.RunID); err != nil {
		return fmt.Errorf("handle %s/%d: fan-out: %w", msg.TaskID, msg.RunID, err)
	}

	return h.ack(ctx, msg)
}

func (h *MessageHandler) ack(ctx context.Context, msg advisoryqueue.AdvisoryMessage) error {
	if msg.Remove == nil {
		return nil
	}
	return msg.Remove(ctx)
}

// claimExpiredModifier builds the guarded mutation as a pure function of
// the snapshot it is handed, as required by the store's CAS retry
// contract.
func (h *MessageHandler) claimExpiredModifier(msg advisoryqueue.AdvisoryMessage, integrityIssue *error) store.TaskModifier {
	return func(t *model.Task) (*model.Task, bool) {
		// Modify retries this closure on every lost CAS race; reset so a
		// losing attempt's integrity finding never survives to be
		// reported against the attempt that actually won.
		*integrityIssue = nil

		run, ok := t.RunAt(msg.RunID)
		if !ok {
			// The claim never actually created the run.
			return t, false
		}
		if run.State != state.RunRunning || !run.TakenUntil.Equal(msg.TakenUntil) {
			// A concurrent reclaim or resolution already won the race.
			return t, false
		}
		if !t.Deadline.After(h.now()) {
			// The deadline path is authoritative; suppress claim-expired
			// to avoid double-resolution.
			return t, false
		}

		next := t.Clone()
		run.State = state.RunException
		run.ReasonResolved = state.ReasonClaimExpired
		run.Resolved = h.now()
		next.Runs[msg.RunID] = run

		if msg.RunID != len(next.Runs)-1 {
			*integrityIssue = &errs.DataIntegrityError{
				TaskID: t.TaskID,
				RunID:  msg.RunID,
				Detail: fmt.Sprintf("resolved run is not the last run (runs.length=%d)", len(next.Runs)),
			}
			// "Make no further changes": skip the retry-run append below
			// regardless of retriesLeft, but the exception transition
			// itself still stands.
			return next, true
		}

		if next.RetriesLeft > 0 {
			next.RetriesLeft--
			next.Runs = append(next.Runs, model.Run{
				State:         state.RunPending,
				ReasonCreated: state.ReasonRetry,
				Scheduled:     h.now(),
			})
		}

		return next, true
	}
}

// fanOut emits notifications only if this handler invocation clearly owns
// the transition it just (attempted to) cause.
func (h *MessageHandler) fanOut(ctx context.Context, task *model.Task, runID int) error {
	run, ok := task.RunAt(runID)
	if !ok || run.State != state.RunException || run.ReasonResolved != state.ReasonClaimExpired {
		// Another actor already handled this transition's fan-out.
		return nil
	}

	// A third run appearing beyond our optional retry means some other
	// actor has already moved the task forward past anything we could
	// usefully assert here. Acknowledge silently rather than reporting an
	// incident — decided as benign rather than a reportable incident.
	if len(task.Runs)-1 > runID+1 {
		return nil
	}

	newRun, hasNewRun := task.RunAt(runID + 1)
	isRetryRun := hasNewRun &&
		runID+1 == len(task.Runs)-1 &&
		newRun.State == state.RunPending &&
		newRun.ReasonCreated == state.ReasonRetry

	if isRetryRun {
		if err := h.PendingQueue.PutPendingMessage(ctx, task, runID+1); err != nil {
			return fmt.Errorf("pending queue: %w", err)
		}
		if err := h.Publisher.TaskPending(ctx, task.TaskID, notify.TaskPendingPayload{
			Status: StatusPending,
			RunID:  runID + 1,
		}, task.Routes); err != nil {
			return fmt.Errorf("publish taskPending: %w", err)
		}
		h.Logger.TaskPending(task.TaskID, runID+1)
		return nil
	}

	if err := h.DepTracker.ResolveTask(ctx, task.TaskID, task.TaskGroupID, task.SchedulerID, deptracker.ResolutionException); err != nil {
		return fmt.Errorf("dependency tracker: %w", err)
	}
	if err := h.Publisher.TaskException(ctx, task.TaskID, notify.TaskExceptionPayload{
		Status:      StatusException,
		RunID:       runID,
		WorkerGroup: run.WorkerGroup,
		WorkerID:    run.WorkerID,
	}, task.Routes); err != nil {
		return fmt.Errorf("publish taskException: %w", err)
	}
	h.Logger.TaskException(task.TaskID, runID)
	return nil
}
