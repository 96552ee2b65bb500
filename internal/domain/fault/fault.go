// Package fault defines the error taxonomy shared by every usecase.
// Handlers map kinds onto HTTP status codes; usecases never touch HTTP.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Validation: bad input, no side effect occurred.
	Validation Kind = iota + 1
	// Authorization: role or membership check failed.
	Authorization
	// InvalidState: operation attempted from a disallowed lifecycle state.
	InvalidState
	// ExternalNetwork: the settlement network call failed or timed out.
	ExternalNetwork
	// Consistency: local commit failed after an external call already
	// succeeded. Always paired with a quarantine ledger entry.
	Consistency
	// NotFound: referenced record does not exist.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Authorization:
		return "authorization"
	case InvalidState:
		return "invalid_state"
	case ExternalNetwork:
		return "external_network"
	case Consistency:
		return "consistency"
	case NotFound:
		return "not_found"
	}
	return "unknown"
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, fault.Err(kind)) style comparisons work on bare kinds.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
	}
	return false
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the Kind carried by err, or 0 when err is not a fault error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
