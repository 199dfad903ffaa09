package errors

import (
	"context"
	"errors"
	"strings"
)

// As is errors.As, re-exported so callers need a single errors import.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsCategory reports whether err carries a TypedError of the given category.
func IsCategory(err error, category Category) bool {
	typed, ok := asTyped(err)
	return ok && typed.Category == category
}

// IsCode reports whether err carries a TypedError with the given code.
func IsCode(err error, code string) bool {
	typed, ok := asTyped(err)
	return ok && typed.Code == code
}

func asTyped(err error) (*TypedError, bool) {
	var typed *TypedError
	if err == nil || !errors.As(err, &typed) {
		return nil, false
	}
	return typed, true
}

// ToTyped converts any error into a TypedError so that nothing untyped escapes a
// public boundary. Context errors keep their meaning.
func ToTyped(err error) *TypedError {
	if err == nil {
		return nil
	}
	if typed, ok := asTyped(err); ok {
		return typed
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewSubmissionTimeout("operation timed out", err)
	case errors.Is(err, context.Canceled):
		return New(CategoryInternal, "cancelled", "operation cancelled", err)
	}
	return NewInternalError(err.Error(), err)
}

// transient substrings of transport errors that carry no type information
var transientMessages = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"too many requests",
	"rate limit",
}

// IsRetryable classifies err. Untyped errors are matched by message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if typed, ok := asTyped(err); ok {
		return typed.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientMessages {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
