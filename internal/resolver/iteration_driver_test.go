package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterq/claimresolver/internal/advisoryqueue"
)

func TestIterationDriver_StartTerminate_RunsAtLeastOneIteration(t *testing.T) {
	var iterations int32
	queue := &MockAdvisoryQueue{
		MockPollClaimQueue: func(ctx context.Context) ([]advisoryqueue.AdvisoryMessage, error) {
			atomic.AddInt32(&iterations, 1)
			return nil, nil
		},
	}
	handler := newHandler(&MockTaskStore{}, &MockPendingQueue{}, &MockPublisher{}, &MockDependencyTracker{}, noopLogger(), noopErrorReporter())
	fanout := &PollFanout{Queue: queue, Handler: handler, Parallelism: 1, Logger: noopLogger(), Errors: noopErrorReporter()}

	d := &IterationDriver{
		Fanout:           fanout,
		PollingDelay:     10 * time.Millisecond,
		MaxIterationTime: time.Second,
		MaxFailures:      3,
		Alert:            &MockAlertSink{},
		Errors:           noopErrorReporter(),
	}

	d.Start()
	time.Sleep(30 * time.Millisecond)
	d.Terminate()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&iterations), int32(1))
}

// Liveness: MaxFailures consecutive failed iterations escalates to Exit,
// and does so without calling os.Exit during the test.
func TestIterationDriver_EscalatesAfterMaxConsecutiveFailures(t *testing.T) {
	failErr := errors.New("queue unreachable")
	queue := &MockAdvisoryQueue{
		MockPollClaimQueue: func(ctx context.Context) ([]advisoryqueue.AdvisoryMessage, error) {
			return nil, failErr
		},
	}
	handler := newHandler(&MockTaskStore{}, &MockPendingQueue{}, &MockPublisher{}, &MockDependencyTracker{}, noopLogger(), noopErrorReporter())
	fanout := &PollFanout{Queue: queue, Handler: handler, Parallelism: 1, Logger: noopLogger(), Errors: noopErrorReporter()}

	var alerted int32
	var exitCode int32
	exited := make(chan struct{})
	d := &IterationDriver{
		Fanout:           fanout,
		PollingDelay:     time.Millisecond,
		MaxIterationTime: time.Second,
		MaxFailures:      3,
		Alert:            &MockAlertSink{MockAlert: func(msg string) { atomic.AddInt32(&alerted, 1) }},
		Errors:           noopErrorReporter(),
		Exit: func(code int) {
			atomic.StoreInt32(&exitCode, int32(code))
			close(exited)
		},
	}

	d.Start()

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("driver never escalated to Exit")
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&alerted))
	assert.Equal(t, int32(1), atomic.LoadInt32(&exitCode))
}

// A successful iteration resets the consecutive-failure counter, so an
// intermittent failure never escalates.
func TestIterationDriver_SuccessResetsFailureCounter(t *testing.T) {
	var calls int32
	queue := &MockAdvisoryQueue{
		MockPollClaimQueue: func(ctx context.Context) ([]advisoryqueue.AdvisoryMessage, error) {
			n := atomic.AddInt32(&calls, 1)
			if n%2 == 0 {
				return nil, errors.New("transient")
			}
			return nil, nil
		},
	}
	handler := newHandler(&MockTaskStore{}, &MockPendingQueue{}, &MockPublisher{}, &MockDependencyTracker{}, noopLogger(), noopErrorReporter())
	fanout := &PollFanout{Queue: queue, Handler: handler, Parallelism: 1, Logger: noopLogger(), Errors: noopErrorReporter()}

	exited := false
	d := &IterationDriver{
		Fanout:           fanout,
		PollingDelay:     time.Millisecond,
		MaxIterationTime: time.Second,
		MaxFailures:      3,
		Alert:            &MockAlertSink{},
		Errors:           noopErrorReporter(),
		Exit:             func(code int) { exited = true },
	}

	d.Start()
	time.Sleep(50 * time.Millisecond)
	d.Terminate()

	assert.False(t, exited)
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}
