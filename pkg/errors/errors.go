// Package errors defines the categorized error type used across slipway.
// Every failure surfaced by the build and run paths carries a category,
// the operation that produced it, and the wrapped cause.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Category classifies where in the build-and-serve contract a failure occurred.
type Category string

const (
	// CategoryConfig covers invalid recipes and missing ambient configuration.
	CategoryConfig Category = "config"
	// CategoryManifest covers dependency manifest parse and install failures.
	CategoryManifest Category = "manifest"
	// CategoryResolve covers base image resolution failures.
	CategoryResolve Category = "resolve"
	// CategoryBuild covers failures inside the staged build pipeline.
	CategoryBuild Category = "build"
	// CategoryRuntime covers container lifecycle and port contract failures.
	CategoryRuntime Category = "runtime"
	// CategoryIO covers filesystem and blob store failures.
	CategoryIO Category = "io"
)

// Error is the standard slipway error.
type Error struct {
	Category  Category
	Op        string
	Message   string
	Cause     error
	Retryable bool
}

func (e *Error) Error() string {
	prefix := "slipway"
	if e.Op != "" {
		prefix = "slipway/" + e.Op
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches other *Error values by category, and by op when the target
// sets one. This lets callers write errors.Is(err, &Error{Category: CategoryBuild}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Category != "" && t.Category != e.Category {
		return false
	}
	if t.Op != "" && t.Op != e.Op {
		return false
	}
	return true
}

// New creates an Error with an optional cause.
func New(category Category, op, message string, cause error) *Error {
	return &Error{Category: category, Op: op, Message: message, Cause: cause}
}

// Newf creates an Error without a cause from a format string.
func Newf(category Category, op, format string, args ...interface{}) *Error {
	return &Error{Category: category, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates cause with a category and op. Returns nil when cause is nil.
func Wrap(category Category, op, message string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Category: category, Op: op, Message: message, Cause: cause}
}

// IsCategory reports whether any error in err's chain carries the category.
func IsCategory(err error, category Category) bool {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Category == category {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}

// GetCategory returns the category of the outermost *Error in the chain,
// or an empty category when err is not a slipway error.
func GetCategory(err error) Category {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category
	}
	return ""
}

// IsRetryable reports whether the outermost *Error is marked retryable.
// Build aborts are never retryable; the flag exists for transient
// runtime probes.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}
