// Package apperr defines the error-kind taxonomy ARServer uses to turn
// handler failures into wire-level failed responses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an AppError for wire-boundary conversion.
type Kind string

const (
	KindPrecondition Kind = "PRECONDITION"
	KindLocking      Kind = "LOCKING"
	KindValidation   Kind = "VALIDATION"
	KindExternal     Kind = "EXTERNAL"
	KindInternal     Kind = "INTERNAL"
)

// AppError is the single error type every dispatcher handler returns.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Precondition reports a scene/project/state-machine precondition failure.
func Precondition(message string) *AppError {
	return &AppError{Kind: KindPrecondition, Message: message}
}

// Preconditionf is Precondition with fmt.Sprintf formatting.
func Preconditionf(format string, args ...interface{}) *AppError {
	return Precondition(fmt.Sprintf(format, args...))
}

// CannotLock reports failure to acquire one or more advisory locks.
func CannotLock(ids []string) *AppError {
	return &AppError{Kind: KindLocking, Message: fmt.Sprintf("Cannot lock: %v", ids)}
}

// CannotUnlock reports failure to release one or more advisory locks.
func CannotUnlock(ids []string) *AppError {
	return &AppError{Kind: KindLocking, Message: fmt.Sprintf("Cannot unlock: %v", ids)}
}

// SomethingLocked reports a global operation refused because some user holds
// an edit lock.
func SomethingLocked() *AppError {
	return &AppError{Kind: KindLocking, Message: "Someone still holds a write lock."}
}

// NotWriteLocked reports that the caller does not hold the write lock it
// needs for the mutation it is attempting.
func NotWriteLocked(id string) *AppError {
	return &AppError{Kind: KindLocking, Message: fmt.Sprintf("Object is not write locked %s", id)}
}

// Validation reports a type mismatch, name collision, or malformed id.
func Validation(field, reason string) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf("%s: %s", field, reason)}
}

// External wraps a failure from a collaborator service named by component.
func External(component string, err error) *AppError {
	return &AppError{Kind: KindExternal, Message: fmt.Sprintf("%s: %v", component, err), Err: err}
}

// Internal wraps a contract violation or unexpected error.
func Internal(err error) *AppError {
	return &AppError{Kind: KindInternal, Message: "internal error", Err: err}
}

// Is reports whether err is an *AppError of the given Kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// Messages flattens err into the wire response's `messages` list. A plain
// (non-AppError) error yields its Error() string as the single message.
func Messages(err error) []string {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return []string{appErr.Message}
	}
	return []string{err.Error()}
}

// As re-exports errors.As for call sites that only import apperr.
func As(err error, target interface{}) bool { return errors.As(err, target) }
