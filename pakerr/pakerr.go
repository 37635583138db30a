// Package pakerr classifies codec failures into the small set of categories
// callers need to branch on, instead of forcing string matching on
// fmt.Errorf output.
package pakerr

import (
	"errors"
	"fmt"
)

// Kind is one of the canonical error categories from spec §7.
type Kind int

const (
	Other Kind = iota
	InvalidInput
	InvalidData
	PermissionDenied
	EOF
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid input"
	case InvalidData:
		return "invalid data"
	case PermissionDenied:
		return "permission denied"
	case EOF:
		return "eof"
	default:
		return "other"
	}
}

// Error wraps an inner error with a Kind so errors.As can recover it and
// Is can match on category.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Msg: msg}
}

func Wrap(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Msg: msg, Cause: cause}
}

func Invalidf(format string, args ...any) *Error {
	return New(InvalidInput, fmt.Sprintf(format, args...))
}

func Corruptf(format string, args ...any) *Error {
	return New(InvalidData, fmt.Sprintf(format, args...))
}

func Denyf(format string, args ...any) *Error {
	return New(PermissionDenied, fmt.Sprintf(format, args...))
}

func Otherf(format string, args ...any) *Error {
	return New(Other, fmt.Sprintf(format, args...))
}

// Is reports whether err was classified with the given kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
