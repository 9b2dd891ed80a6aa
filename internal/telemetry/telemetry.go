// Package telemetry defines the structured logger, error reporter, and
// alert sink the resolver consumes. The default implementation wraps the
// standard library's log.Logger: plain log.Println/log.Printf calls, no
// structured logging library.
package telemetry

import (
	"fmt"
	"log"
	"os"
)

// Logger emits the resolver's named structured log events.
type Logger interface {
	AzureQueuePoll(messagesReceived, messagesFailed int, resolver string)
	TaskPending(taskID string, runID int)
	TaskException(taskID string, runID int)
}

// ErrorReporter surfaces an error with a severity, distinct from Logger
// because "report an error" and "log a line" are separate concerns.
// Reporting does not count anything: failure budgets are tracked by the
// callers (the Iteration Driver counts failed iterations itself).
type ErrorReporter interface {
	ReportError(err error, severity string)
}

// AlertSink is the fatal-escalation path: the Iteration Driver calls this
// exactly once, right before process exit, when maxFailures is breached.
type AlertSink interface {
	Alert(msg string)
}

// StdLogger is the default Logger/ErrorReporter/AlertSink implementation.
type StdLogger struct {
	log *log.Logger
}

func NewStdLogger() *StdLogger {
	return &StdLogger{log: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)}
}

func (l *StdLogger) AzureQueuePoll(messagesReceived, messagesFailed int, resolver string) {
	l.log.Printf("azureQueuePoll resolver=%s messages=%d failed=%d", resolver, messagesReceived, messagesFailed)
}

func (l *StdLogger) TaskPending(taskID string, runID int) {
	l.log.Printf("taskPending taskId=%s runId=%d", taskID, runID)
}

func (l *StdLogger) TaskException(taskID string, runID int) {
	l.log.Printf("taskException taskId=%s runId=%d", taskID, runID)
}

func (l *StdLogger) ReportError(err error, severity string) {
	if err == nil {
		return
	}
	l.log.Printf("[%s] %v", severity, err)
}

func (l *StdLogger) Alert(msg string) {
	l.log.Printf("ALERT: %s", msg)
}

var _ Logger = (*StdLogger)(nil)
var _ ErrorReporter = (*StdLogger)(nil)
var _ AlertSink = (*StdLogger)(nil)

// Severity levels used with ErrorReporter.ReportError.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Fatalf is a small helper the cmd entrypoint uses when a misconfiguration
// is unrecoverable at startup.
func Fatalf(format string, args ...any) {
	log.Fatal(fmt.Sprintf(format, args...))
}
