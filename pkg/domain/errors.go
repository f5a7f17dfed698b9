package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-checkable classification of a failure.
type ErrorKind string

// Failure kinds surfaced by the lifecycle engine and the store.
const (
	KindInvalidInput   ErrorKind = "invalid_input"
	KindNotFound       ErrorKind = "not_found"
	KindForbidden      ErrorKind = "forbidden"
	KindConflict       ErrorKind = "conflict"
	KindStorageFailure ErrorKind = "storage_failure"
)

// Error carries a kind, a human-readable message and, for conflicts, the
// status the entity was in when the guard failed.
type Error struct {
	Kind    ErrorKind
	Message string
	Status  RequestStatus
	Err     error
}

// ErrDuplicateRequestID is wrapped by the conflict returned when a new
// request reuses a stored request identifier. Such conflicts carry no Status.
var ErrDuplicateRequestID = errors.New("duplicate request identifier")

// Sentinels usable with errors.Is; matching compares kinds only.
var (
	ErrInvalidInput   = &Error{Kind: KindInvalidInput}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrForbidden      = &Error{Kind: KindForbidden}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrStorageFailure = &Error{Kind: KindStorageFailure}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// InvalidInput builds an invalid_input error.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not_found error for the given entity.
func NotFound(entity EntityType, id any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// Forbidden builds a forbidden error.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error reporting the current status.
func Conflict(current RequestStatus, format string, args ...any) *Error {
	return &Error{
		Kind:    KindConflict,
		Status:  current,
		Message: fmt.Sprintf(format, args...) + fmt.Sprintf(" (current status %s)", current),
	}
}

// StorageFailure wraps an underlying read/write failure.
func StorageFailure(op string, err error) *Error {
	return &Error{Kind: KindStorageFailure, Message: op, Err: err}
}
