package evaluation

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
	KindTransitionFailure Kind = "transition_failure"
)

// Error is the single error type returned by the engine. Kind carries the
// failure class callers branch on; Err keeps the underlying cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var evalErr *Error
	if errors.As(err, &evalErr) {
		return evalErr.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

func notFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

func invalid(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func conflict(op, format string, args ...any) error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// transitionFailed tags an untyped cascade error. Tagged errors pass through
// untouched so a NotFound raised inside a transaction stays a NotFound.
func transitionFailed(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return &Error{Kind: KindTransitionFailure, Op: op, Message: "transition rolled back", Err: err}
}

// fromStore maps a raw store error for a lookup of what into a tagged error.
func fromStore(op, what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return notFound(op, "%s not found", what)
	}
	if KindOf(err) != "" {
		return err
	}
	return &Error{Kind: KindTransitionFailure, Op: op, Message: "store failure", Err: err}
}
