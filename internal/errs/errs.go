// Package errs holds the resolver's small set of domain error types. Most
// failures are wrapped with fmt.Errorf("...: %w", err) inline at the call
// site; these types exist for the handful of places a caller needs to
// branch on *kind* of error rather than just log it.
package errs

import (
	"errors"
	"fmt"
)

// AggregateError collects more than one error under a single error value.
type AggregateError struct {
	Errors []error
}

func (a *AggregateError) Add(err error) {
	if err != nil {
		a.Errors = append(a.Errors, err)
	}
}

func (a *AggregateError) HasErrors() bool {
	return len(a.Errors) > 0
}

func (a *AggregateError) Error() string {
	if len(a.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", errors.Join(a.Errors...))
}

// DataIntegrityError marks a data integrity incident: the conditional
// load or the CAS mutation observed state that should be impossible under
// the documented invariants. These are always reported
// and the triggering advisory message is still acknowledged — redelivery
// would only reproduce the same incident.
type DataIntegrityError struct {
	TaskID string
	RunID  int
	Detail string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity incident: task=%s run=%d: %s", e.TaskID, e.RunID, e.Detail)
}

// IsDataIntegrity reports whether err (or something it wraps) is a
// DataIntegrityError.
func IsDataIntegrity(err error) bool {
	var d *DataIntegrityError
	return errors.As(err, &d)
}
