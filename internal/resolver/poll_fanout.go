package resolver

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/clusterq/claimresolver/internal/advisoryqueue"
	"github.com/clusterq/claimresolver/internal/telemetry"
)

// PollFanout runs, within one iteration, Parallelism concurrent poll
// loops, each pulling a batch and dispatching every message to the
// Message Handler concurrently, bounded by a semaphore.
type PollFanout struct {
	Queue       advisoryqueue.AdvisoryQueue
	Handler     *MessageHandler
	Parallelism int
	Logger      telemetry.Logger
	Errors      telemetry.ErrorReporter
}

// RunIteration runs Parallelism poll loops once each and waits for all of
// them to finish. It returns the error of the highest-numbered loop only if every
// loop failed outright (e.g. the queue itself is unreachable); a handler
// failure for an individual message is recorded as a warning and does not
// fail the iteration.
func (f *PollFanout) RunIteration(ctx context.Context) error {
	var wg sync.WaitGroup
	loopErrs := make([]error, f.Parallelism)

	for i := 0; i < f.Parallelism; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			loopErrs[idx] = f.pollOnce(ctx)
		}(i)
	}
	wg.Wait()

	failures := 0
	var lastErr error
	for _, err := range loopErrs {
		if err != nil {
			failures++
			lastErr = err
		}
	}
	if failures == f.Parallelism && f.Parallelism > 0 {
		return lastErr
	}
	return nil
}

// pollOnce requests one batch and dispatches every message in it
// concurrently, bounded by a semaphore weighted to the batch size.
// Terminate()'s cancellation is honoured between dispatches, not
// mid-message: a cancelled context stops new handler goroutines from
// starting but never aborts one already in flight. Handlers still run
// under the iteration's deadline, so MaxIterationTime bounds them.
func (f *PollFanout) pollOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	handlerCtx := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithDeadline(handlerCtx, deadline)
		defer cancel()
	}

	messages, err := f.Queue.PollClaimQueue(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(int64(len(messages)))
	var wg sync.WaitGroup
	var failed int64

	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		msg := msg
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if err := f.Handler.Handle(handlerCtx, msg); err != nil {
				atomic.AddInt64(&failed, 1)
				f.Errors.ReportError(err, telemetry.SeverityWarning)
			}
		}()
	}
	wg.Wait()

	f.Logger.AzureQueuePoll(len(messages), int(failed), "claim")
	return nil
}
