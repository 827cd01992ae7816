// Package errors provides error wrapping that keeps the original cause
// reachable, and errors whose messages are meant to be shown to users as-is.
package errors

import (
	goErrors "errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string) error {
	return goErrors.New(msg)
}

// Is is a convenience re-export so callers don't need to import both error
// packages.
func Is(err, target error) bool {
	return goErrors.Is(err, target)
}

type withContext struct {
	cause   error
	context string
}

// WithContext annotates `err` with a short description of what was being
// attempted when it occurred. The returned error is comparable so that tests
// can check for exact errors.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return withContext{cause: err, context: context}
}

func (err withContext) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.cause)
}

func (err withContext) Unwrap() error {
	return err.cause
}

// RootCause returns the innermost error that was wrapped by WithContext.
func RootCause(err error) error {
	for {
		wrapped, ok := err.(withContext)
		if !ok {
			return err
		}
		err = wrapped.cause
	}
}

// FriendlyError is an error whose message is meant to be shown to the user
// without any additional context.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a new FriendlyError with the formatted message.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{fmt.Sprintf(format, args...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the user-facing message.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

type friendlyMessager interface {
	FriendlyMessage() string
}

// GetPrintableMessage returns the message that should be shown to the user.
// If any error in the chain has a friendly message, it's used rather than
// the full error string.
func GetPrintableMessage(err error) string {
	var friendly friendlyMessager
	if goErrors.As(err, &friendly) {
		return friendly.FriendlyMessage()
	}
	return err.Error()
}
