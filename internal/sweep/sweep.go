// Package sweep implements the reconciliation sweep: a cron-scheduled,
// lock-guarded backstop that discovers expired claims the advisory queue
// never delivered a message for — a lost message, a queue outage during
// the original claim, or a manually cleared queue — and feeds them into
// the same message handler the queue-driven path uses. The lock-then-
// page-then-dispatch shape mirrors a periodic batch-job runner, with the
// unit of work an expired claim and the dispatch target
// resolver.MessageHandler instead of a job handler registry.
package sweep

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/clusterq/claimresolver/internal/advisoryqueue"
	"github.com/clusterq/claimresolver/internal/constants"
	"github.com/clusterq/claimresolver/internal/lock"
	"github.com/clusterq/claimresolver/internal/resolver"
	"github.com/clusterq/claimresolver/internal/store"
	"github.com/clusterq/claimresolver/internal/telemetry"
)

// Sweep periodically scans for expired claims the advisory queue missed
// and resolves them through the same handler the queue-driven path uses.
type Sweep struct {
	Store       store.TaskStore
	Lock        lock.DistributedLockManager
	Handler     *resolver.MessageHandler
	Parallelism int
	BatchSize   int
	Logger      telemetry.Logger
	Errors      telemetry.ErrorReporter

	cronSched *cron.Cron
	entryID   cron.EntryID
	mu        sync.Mutex
}

// Start schedules the sweep on expr: anything cron.New's default parser
// accepts, either a standard 5-field cron expression or a descriptor such
// as the "@every <duration>" form wiring derives from SweepInterval.
func (s *Sweep) Start(expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cronSched = cron.New()
	id, err := s.cronSched.AddFunc(expr, func() {
		s.run(context.Background())
	})
	if err != nil {
		return fmt.Errorf("sweep: schedule %q: %w", expr, err)
	}
	s.entryID = id
	s.cronSched.Start()
	return nil
}

// Stop cancels the schedule and waits for any in-flight run to finish.
func (s *Sweep) Stop() {
	s.mu.Lock()
	sched := s.cronSched
	s.mu.Unlock()
	if sched == nil {
		return
	}
	<-sched.Stop().Done()
}

func (s *Sweep) run(ctx context.Context) {
	if err := s.Lock.Acquire(ctx, constants.SweepLock); err != nil {
		s.Errors.ReportError(fmt.Errorf("sweep: lock acquire: %w", err), telemetry.SeverityWarning)
		return
	}
	defer s.Lock.Release(ctx, constants.SweepLock)

	claims, err := s.Store.ScanExpiredClaims(ctx, s.BatchSize)
	if err != nil {
		s.Errors.ReportError(fmt.Errorf("sweep: scan expired claims: %w", err), telemetry.SeverityWarning)
		return
	}
	if len(claims) == 0 {
		return
	}

	sem := semaphore.NewWeighted(int64(s.Parallelism))
	var wg sync.WaitGroup
	for _, claim := range claims {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		claim := claim
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			s.dispatch(ctx, claim)
		}()
	}
	wg.Wait()

	s.Logger.AzureQueuePoll(len(claims), 0, "sweep")
}

// dispatch hands one scan result to the message handler as a synthetic
// advisory message. There is no underlying queue row to remove, so Remove
// is a no-op: the handler's Step 1 conditional load is what actually
// guards against acting twice on the same claim.
func (s *Sweep) dispatch(ctx context.Context, claim store.ExpiredClaim) {
	msg := advisoryqueue.AdvisoryMessage{
		TaskID:     claim.TaskID,
		RunID:      claim.RunID,
		TakenUntil: claim.TakenUntil,
		Remove:     func(context.Context) error { return nil },
	}
	if err := s.Handler.Handle(ctx, msg); err != nil {
		s.Errors.ReportError(fmt.Errorf("sweep: handle %s/%d: %w", claim.TaskID, claim.RunID, err), telemetry.SeverityWarning)
	}
}
