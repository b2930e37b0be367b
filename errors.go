package quorum

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a failed operation. Every public operation of the
// coordination actors returns one of these kinds; nothing is thrown across
// the actor boundary.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindCapacity
	KindPermission
	KindInvalidState
	KindLockTimeout
	KindInfrastructure
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindCapacity:
		return "capacity"
	case KindPermission:
		return "permission"
	case KindInvalidState:
		return "invalid_state"
	case KindLockTimeout:
		return "lock_timeout"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Error is the structured failure carried back to the transport layer.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...interface{}) *Error {
	return newError(KindValidation, format, args...)
}

func NotFoundf(format string, args ...interface{}) *Error {
	return newError(KindNotFound, format, args...)
}

func Conflictf(format string, args ...interface{}) *Error {
	return newError(KindConflict, format, args...)
}

func Capacityf(format string, args ...interface{}) *Error {
	return newError(KindCapacity, format, args...)
}

func Permissionf(format string, args ...interface{}) *Error {
	return newError(KindPermission, format, args...)
}

func InvalidStatef(format string, args ...interface{}) *Error {
	return newError(KindInvalidState, format, args...)
}

func LockTimeoutf(format string, args ...interface{}) *Error {
	return newError(KindLockTimeout, format, args...)
}

// Infrastructuref wraps an unexpected backend error. The cause keeps its
// stack trace for diagnostics.
func Infrastructuref(cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindInfrastructure,
		Message: fmt.Sprintf(format, args...),
		cause:   errors.WithStack(cause),
	}
}

// KindOf reports the classification of err, or KindUnknown for errors that
// did not originate from this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
