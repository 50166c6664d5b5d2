package backend

import (
	"errors"
	"fmt"
)

// ErrKind classifies backend failures per SPEC_FULL.md §7.
type ErrKind int

const (
	KindBackendError ErrKind = iota
	KindNotFound
	KindEntryNotInTree
	KindInvalidEntry
	KindNoCommonAncestor
	KindEmptyEntryList
	KindCycleDetected
)

func (k ErrKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindEntryNotInTree:
		return "entry_not_in_tree"
	case KindInvalidEntry:
		return "invalid_entry"
	case KindNoCommonAncestor:
		return "no_common_ancestor"
	case KindEmptyEntryList:
		return "empty_entry_list"
	case KindCycleDetected:
		return "cycle_detected"
	default:
		return "backend_error"
	}
}

// Error is the error type returned by every Backend method. It carries a
// stable Kind plus an optional wrapped cause, so callers can branch with
// errors.Is against the package-level sentinels below while still seeing
// %w-wrapped context in the message.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("backend: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) (etc.) match by Kind rather than by
// identity, since each call site constructs its own *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors for errors.Is comparisons; only Kind is consulted.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrEntryNotInTree   = &Error{Kind: KindEntryNotInTree}
	ErrInvalidEntry     = &Error{Kind: KindInvalidEntry}
	ErrNoCommonAncestor = &Error{Kind: KindNoCommonAncestor}
	ErrEmptyEntryList   = &Error{Kind: KindEmptyEntryList}
	ErrCycleDetected    = &Error{Kind: KindCycleDetected}
)

// NewError constructs an *Error of the given kind wrapping cause.
func NewError(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// wrapf mirrors the teacher's wrapDBErrorf helper (internal/storage/sqlite
// uses fmt.Errorf("...: %w", err) throughout), specialized to backend.Error.
func wrapf(kind ErrKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsNotFound is a convenience matching the teacher's isNotFound helper
// style.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
