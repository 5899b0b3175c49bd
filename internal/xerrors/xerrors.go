// Package xerrors classifies engine errors into the five kinds the error
// handling design distinguishes, so callers can decide whether to retry,
// roll back a savepoint, surface to the client, tear down a connection, or
// treat the error as fatal to the running statement.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the five error categories.
type Kind int

const (
	// Transient covers out-of-memory and temp-file-page exhaustion: the
	// caller may retry after releasing non-essential state.
	Transient Kind = iota
	// Logical covers predicate errors, duplicate keys, NOT NULL
	// violations, multi-row single-tuple subqueries, and CONNECT BY
	// cycles without NOCYCLE. Rolls back the statement's savepoint.
	Logical
	// Concurrency covers lock timeouts, deadlock victims, and
	// interruption. SELUPD increments silently skip these; everything
	// else surfaces them.
	Concurrency
	// Connection covers peer-closed, framing errors, and data-wait
	// timeouts. The connection moves to CLOSED and in-flight waiters
	// wake with CONNECTION_CLOSED.
	Connection
	// Internal covers unexpected node kinds and corrupt tuple headers:
	// fatal to the statement, always logged.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Logical:
		return "logical"
	case Concurrency:
		return "concurrency"
	case Connection:
		return "connection"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is an engine error tagged with its Kind, wrapping an underlying
// cause with fmt.Errorf-style %w semantics.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transientf(op, format string, args ...interface{}) *Error {
	return &Error{Kind: Transient, Op: op, Err: fmt.Errorf(format, args...)}
}

func Logicalf(op, format string, args ...interface{}) *Error {
	return &Error{Kind: Logical, Op: op, Err: fmt.Errorf(format, args...)}
}

func Concurrencyf(op, format string, args ...interface{}) *Error {
	return &Error{Kind: Concurrency, Op: op, Err: fmt.Errorf(format, args...)}
}

func Connectionf(op, format string, args ...interface{}) *Error {
	return &Error{Kind: Connection, Op: op, Err: fmt.Errorf(format, args...)}
}

func Internalf(op, format string, args ...interface{}) *Error {
	return &Error{Kind: Internal, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the Kind of err if it (or something it wraps) is an
// *Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
