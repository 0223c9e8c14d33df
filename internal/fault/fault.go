// Package fault classifies engine errors into the four kinds callers act on.
package fault

import (
	"github.com/pkg/errors"
)

// Kind is the coarse class of an error. Kinds are comparable with errors.Is.
type Kind struct{ name string }

func (k *Kind) Error() string { return k.name }

var (
	NotFound          = &Kind{name: "not found"}
	InvalidState      = &Kind{name: "invalid state"}
	InvalidInput      = &Kind{name: "invalid input"}
	DependencyFailure = &Kind{name: "dependency failure"}
)

// Error is a named failure belonging to one Kind.
// errors.Is matches both the Error itself and its Kind.
type Error struct {
	Kind *Kind
	Msg  string
}

func New(kind *Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func (e *Error) Error() string { return e.Msg }

func (e *Error) Is(target error) bool {
	if k, ok := target.(*Kind); ok {
		return e.Kind == k
	}
	return false
}

// Dependency wraps an infrastructure error (store, blob, lock) so it reports as DependencyFailure.
func Dependency(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &depError{cause: errors.Wrap(err, msg)}
}

type depError struct{ cause error }

func (e *depError) Error() string { return e.cause.Error() }
func (e *depError) Unwrap() error { return e.cause }
func (e *depError) Is(target error) bool { return target == DependencyFailure }

// KindOf returns the Kind of err, or nil if err carries none.
func KindOf(err error) *Kind {
	for _, k := range []*Kind{NotFound, InvalidState, InvalidInput, DependencyFailure} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
