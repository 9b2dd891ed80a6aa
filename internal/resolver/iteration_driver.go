package resolver

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/clusterq/claimresolver/internal/telemetry"
)

// IterationDriver drives PollFanout.RunIteration at a bounded cadence,
// bounds per-iteration time, and escalates repeated failure to process
// termination. It's a ticker loop guarded by a WaitGroup so Terminate()
// can report true completion, with a hard per-iteration timeout and a
// consecutive-failure counter feeding liveness-based escalation.
type IterationDriver struct {
	Fanout           *PollFanout
	PollingDelay     time.Duration
	MaxIterationTime time.Duration
	MaxFailures      int
	Alert            telemetry.AlertSink
	Errors           telemetry.ErrorReporter

	// Exit is called with a non-zero code once MaxFailures consecutive
	// iteration failures occur. Defaults to os.Exit; tests override it to
	// observe escalation without killing the test binary.
	Exit func(code int)

	mu                  sync.Mutex
	cancel              context.CancelFunc
	done                chan struct{}
	consecutiveFailures int
}

// Start begins iterating and returns once the first iteration has begun.
func (d *IterationDriver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Exit == nil {
		d.Exit = os.Exit
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	started := make(chan struct{})
	go d.loop(ctx, started)
	<-started
}

// Terminate requests graceful shutdown and blocks until the current
// iteration completes and no further iterations will begin.
func (d *IterationDriver) Terminate() {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *IterationDriver) loop(ctx context.Context, started chan struct{}) {
	defer close(d.done)

	ticker := time.NewTicker(d.PollingDelay)
	defer ticker.Stop()

	firstIteration := true
	for {
		if ctx.Err() != nil {
			return
		}

		iterCtx, iterCancel := context.WithTimeout(ctx, d.MaxIterationTime)
		if firstIteration {
			close(started)
			firstIteration = false
		}

		err := d.Fanout.RunIteration(iterCtx)
		if err == nil && iterCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("iteration exceeded %s: %w", d.MaxIterationTime, iterCtx.Err())
		}
		iterCancel()

		if err != nil {
			d.consecutiveFailures++
			d.Errors.ReportError(fmt.Errorf("iteration failed (%d/%d consecutive): %w", d.consecutiveFailures, d.MaxFailures, err), telemetry.SeverityWarning)
			if d.consecutiveFailures >= d.MaxFailures {
				d.Alert.Alert(fmt.Sprintf("resolver: %d consecutive iteration failures, exiting", d.consecutiveFailures))
				d.Exit(1)
				return
			}
		} else {
			d.consecutiveFailures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
