package engine

import (
	"errors"
	"fmt"

	httputil "github.com/vitalsync/agent/pkg/infrastructure/http"
)

// Class is the engine's failure taxonomy. Only Retryable affects the
// scheduler; NoOp and Permanent resolve to success at the scheduling
// boundary so the chain never wedges on a state the user must fix or a bug
// a retry cannot cure.
type Class int

const (
	ClassSuccess Class = iota
	ClassNoOp
	ClassRetryable
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassNoOp:
		return "noop"
	case ClassRetryable:
		return "retryable"
	case ClassPermanent:
		return "permanent"
	}
	return "unknown"
}

// Outcome is the result of one sync job invocation.
type Outcome struct {
	Class       Class
	Reason      string // set for no-ops
	Err         error  // set for retryable/permanent
	DaysWritten int
}

// ShouldRetry reports whether the scheduler should backoff-rearm instead of
// arming the next daily slot.
func (o Outcome) ShouldRetry() bool {
	return o.Class == ClassRetryable
}

func Success(daysWritten int) Outcome {
	return Outcome{Class: ClassSuccess, DaysWritten: daysWritten}
}

// NoOp is an expected non-error: metric disabled, consent missing. The job
// reports success so the scheduler does not retry-storm on a state only the
// user can resolve.
func NoOp(reason string) Outcome {
	return Outcome{Class: ClassNoOp, Reason: reason}
}

func Retryable(err error, daysWritten int) Outcome {
	return Outcome{Class: ClassRetryable, Err: err, DaysWritten: daysWritten}
}

func Permanent(err error, daysWritten int) Outcome {
	return Outcome{Class: ClassPermanent, Err: err, DaysWritten: daysWritten}
}

// PermanentError marks a failure retrying cannot fix (decode failures,
// malformed local state).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// MarkPermanent wraps err so Classify resolves it as Permanent.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Classify buckets an I/O error: explicitly marked failures and
// non-retryable HTTP statuses are Permanent, everything else (network,
// timeouts, transient store failures) is Retryable.
func Classify(err error) Class {
	if err == nil {
		return ClassSuccess
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return ClassPermanent
	}
	if !httputil.IsRetryable(err) {
		return ClassPermanent
	}
	return ClassRetryable
}
