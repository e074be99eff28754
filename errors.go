package memex

import (
	"errors"
	"fmt"
)

// ErrorKind is the exhaustive set of machine-readable error categories
// surfaced at the core boundary. Every public operation that can
// fail returns an error whose kind is recoverable via KindOf.
type ErrorKind int

const (
	// KindInternal is an unexpected failure; the message is always sanitized.
	KindInternal ErrorKind = iota
	// KindInvalidInput is a caller-fixable size/type/shape violation.
	KindInvalidInput
	// KindNotFound means the referenced id or profile does not exist.
	KindNotFound
	// KindConflict is a unique-constraint violation (e.g. duplicate profile name).
	KindConflict
	// KindBusy means the write queue is full or the pool is exhausted; retry with backoff.
	KindBusy
	// KindCorrupt means an integrity check failed; caller should consider restore.
	KindCorrupt
	// KindUnavailable means an optional dependency fell back to a degraded
	// but still-valid path (not fatal, surfaced as a warning by the caller).
	KindUnavailable
)

// String renders the kind for logging and JSON CLI output.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBusy:
		return "busy"
	case KindCorrupt:
		return "corrupt"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Sentinel errors tested with errors.Is; wrap with Wrap(kind, op, err) to
// attach an operation name before returning to a caller.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBusy         = errors.New("busy")
	ErrCorrupt      = errors.New("corrupt")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("unavailable")
	ErrClosed       = errors.New("store is closed")
)

// MemexError wraps an underlying error with an operation name and a
// machine-readable kind.
type MemexError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error implements the error interface with a sanitized message: no file
// paths, no raw SQL, no schema names.
func (e *MemexError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("memex: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("memex: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying error to errors.Is/errors.As.
func (e *MemexError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrNotFound) to match through the wrapper.
func (e *MemexError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Wrap attaches an operation name and kind to err. Returns nil if err is nil.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemexError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrorKind from err, defaulting to KindInternal for
// errors that were never classified: lower layers surface raw errors and
// the orchestrator classifies them.
func KindOf(err error) ErrorKind {
	var me *MemexError
	if errors.As(err, &me) {
		return me.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrCorrupt):
		return KindCorrupt
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}
