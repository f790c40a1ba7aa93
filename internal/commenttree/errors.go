package commenttree

import (
	"errors"
	"fmt"
)

// Kind classifies synchronizer failures
type Kind int

const (
	// KindFetch means the initial load or a reply load failed
	KindFetch Kind = iota + 1
	// KindWrite means the store rejected a create, delete or like
	KindWrite
	// KindNotFound means the target comment does not exist
	KindNotFound
	// KindDroppedEvent means a live event referenced an unknown comment
	KindDroppedEvent
	// KindUnauthenticated means there is no current user
	KindUnauthenticated
	// KindForbidden means the current user may not perform the action
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch"
	case KindWrite:
		return "write"
	case KindNotFound:
		return "not found"
	case KindDroppedEvent:
		return "dropped event"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	}
	return "unknown"
}

// Error is returned by every synchronizer and store operation
type Error struct {
	Kind Kind
	Op   string
	ID   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ID != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.ID)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, commenttree.ErrWrite).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrFetch           = &Error{Kind: KindFetch}
	ErrWrite           = &Error{Kind: KindWrite}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrDroppedEvent    = &Error{Kind: KindDroppedEvent}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrForbidden       = &Error{Kind: KindForbidden}
)

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, op, id string, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}
