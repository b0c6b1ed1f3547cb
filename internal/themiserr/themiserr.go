// Package themiserr defines the error taxonomy shared by every Themis
// component. Every public operation returns one of these kinds, wrapped
// around the underlying cause, instead of panicking.
package themiserr

import (
	"errors"
	"fmt"
)

// Kind classifies a Themis error so callers can branch on failure category
// without string matching.
type Kind string

const (
	KindParse       Kind = "parse_error"
	KindTranslate   Kind = "translate_error"
	KindPlan        Kind = "plan_error"
	KindNotFound    Kind = "not_found"
	KindUnique      Kind = "unique_violation"
	KindValidation  Kind = "validation_error"
	KindStore       Kind = "store_error"
	KindCancelled   Kind = "cancelled"
	KindInternal    Kind = "internal_error"
)

// Error is the structured error type returned by Themis components.
type Error struct {
	Kind    Kind
	Message string
	Line    int // 1-based; 0 means unset
	Column  int // 1-based; 0 means unset
	Cause   error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		if e.Cause != nil {
			return fmt.Sprintf("%s at line %d, column %d: %s: %v", e.Kind, e.Line, e.Column, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s at line %d, column %d: %s", e.Kind, e.Line, e.Column, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// AtPosition attaches a 1-based line/column to a parse error.
func AtPosition(kind Kind, line, column int, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Line: line, Column: column}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// unrecognized errors so callers always have something to branch on.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if err == nil {
		return ""
	}
	return KindInternal
}
