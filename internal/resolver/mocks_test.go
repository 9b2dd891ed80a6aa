package resolver

import (
	"context"
	"time"

	"github.com/clusterq/claimresolver/internal/advisoryqueue"
	"github.com/clusterq/claimresolver/internal/model"
	"github.com/clusterq/claimresolver/internal/notify"
	"github.com/clusterq/claimresolver/internal/store"
)

// ===================== TaskStore Mock =========================
type MockTaskStore struct {
	MockQuery             func(ctx context.Context, taskID string, takenUntil time.Time) (*model.Task, error)
	MockModify            func(ctx context.Context, task *model.Task, modifier store.TaskModifier) (*model.Task, error)
	MockScanExpiredClaims func(ctx context.Context, limit int) ([]store.ExpiredClaim, error)
}

func (m *MockTaskStore) Query(ctx context.Context, taskID string, takenUntil time.Time) (*model.Task, error) {
	return m.MockQuery(ctx, taskID, takenUntil)
}
func (m *MockTaskStore) Modify(ctx context.Context, task *model.Task, modifier store.TaskModifier) (*model.Task, error) {
	return m.MockModify(ctx, task, modifier)
}
func (m *MockTaskStore) ScanExpiredClaims(ctx context.Context, limit int) ([]store.ExpiredClaim, error) {
	return m.MockScanExpiredClaims(ctx, limit)
}

// applyModify runs the modifier against task the way a real store would,
// honoring the "nil,false means no-op, return the same pointer" contract.
func applyModify(ctx context.Context, task *model.Task, modifier store.TaskModifier) (*model.Task, error) {
	next, changed := modifier(task)
	if !changed {
		return task, nil
	}
	return next, nil
}

// ===================== AdvisoryQueue Mock =========================
type MockAdvisoryQueue struct {
	MockPollClaimQueue func(ctx context.Context) ([]advisoryqueue.AdvisoryMessage, error)
}

func (m *MockAdvisoryQueue) PollClaimQueue(ctx context.Context) ([]advisoryqueue.AdvisoryMessage, error) {
	return m.MockPollClaimQueue(ctx)
}

// ===================== PendingQueue Mock =========================
type MockPendingQueue struct {
	MockPutPendingMessage func(ctx context.Context, task *model.Task, runID int) error
}

func (m *MockPendingQueue) PutPendingMessage(ctx context.Context, task *model.Task, runID int) error {
	return m.MockPutPendingMessage(ctx, task, runID)
}

// ===================== Publisher Mock =========================
type MockPublisher struct {
	MockTaskPending   func(ctx context.Context, taskID string, payload notify.TaskPendingPayload, routes []string) error
	MockTaskException func(ctx context.Context, taskID string, payload notify.TaskExceptionPayload, routes []string) error
}

func (m *MockPublisher) TaskPending(ctx context.Context, taskID string, payload notify.TaskPendingPayload, routes []string) error {
	return m.MockTaskPending(ctx, taskID, payload, routes)
}
func (m *MockPublisher) TaskException(ctx context.Context, taskID string, payload notify.TaskExceptionPayload, routes []string) error {
	return m.MockTaskException(ctx, taskID, payload, routes)
}

// ===================== DependencyTracker Mock =========================
type MockDependencyTracker struct {
	MockResolveTask func(ctx context.Context, taskID, taskGroupID, schedulerID, resolution string) error
}

func (m *MockDependencyTracker) ResolveTask(ctx context.Context, taskID, taskGroupID, schedulerID, resolution string) error {
	return m.MockResolveTask(ctx, taskID, taskGroupID, schedulerID, resolution)
}

// ===================== Logger / ErrorReporter / AlertSink Mocks =========================
type MockLogger struct {
	MockAzureQueuePoll func(messagesReceived, messagesFailed int, resolver string)
	MockTaskPending    func(taskID string, runID int)
	MockTaskException  func(taskID string, runID int)
}

func (m *MockLogger) AzureQueuePoll(messagesReceived, messagesFailed int, resolver string) {
	if m.MockAzureQueuePoll != nil {
		m.MockAzureQueuePoll(messagesReceived, messagesFailed, resolver)
	}
}
func (m *MockLogger) TaskPending(taskID string, runID int) {
	if m.MockTaskPending != nil {
		m.MockTaskPending(taskID, runID)
	}
}
func (m *MockLogger) TaskException(taskID string, runID int) {
	if m.MockTaskException != nil {
		m.MockTaskException(taskID, runID)
	}
}

type MockErrorReporter struct {
	MockReportError func(err error, severity string)
}

func (m *MockErrorReporter) ReportError(err error, severity string) {
	if m.MockReportError != nil {
		m.MockReportError(err, severity)
	}
}

type MockAlertSink struct {
	MockAlert func(msg string)
}

func (m *MockAlertSink) Alert(msg string) {
	if m.MockAlert != nil {
		m.MockAlert(msg)
	}
}

func noopLogger() *MockLogger             { return &MockLogger{} }
func noopErrorReporter() *MockErrorReporter { return &MockErrorReporter{} }
