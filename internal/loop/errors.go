package loop

import (
	"errors"
	"strings"
)

var (
	// ErrRejected is returned when the input is not admitted. The result
	// returned alongside it is empty.
	ErrRejected = errors.New("input rejected")
	// ErrMissingSchedule is returned when a required schedule has no entries
	ErrMissingSchedule = errors.New("missing schedule")
)

// RejectedError carries the reasons an invocation was not admitted
type RejectedError struct {
	Reasons []string
	Cause   error
}

func (e *RejectedError) Error() string {
	msg := ErrRejected.Error()
	if len(e.Reasons) > 0 {
		msg += ": " + strings.Join(e.Reasons, "; ")
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes ErrRejected and the underlying cause, if any
func (e *RejectedError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrRejected, e.Cause}
	}
	return []error{ErrRejected}
}

func reject(cause error, reasons ...string) *RejectedError {
	return &RejectedError{Reasons: reasons, Cause: cause}
}
