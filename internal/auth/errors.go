package auth

import "fmt"

// Error is an AuthFailure carrying a stable Reason for errors.Is-style
// matching, mirroring backend.Error's Kind field.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

func newError(reason string) *Error { return &Error{Reason: reason} }

func wrapError(reason string, err error) *Error { return &Error{Reason: reason, Err: err} }

// Sentinel reasons used across the package and by callers with errors.Is.
var (
	ErrKeyNotFound      = newError("key_not_found")
	ErrKeyRevoked       = newError("revoked")
	ErrSignatureInvalid = newError("signature_invalid")
	ErrSignatureMissing = newError("signature_missing")
	ErrInsufficientPerm = newError("insufficient_permission")
	ErrEmptySigKey      = newError("empty_sig_key")
	ErrMissingDelegation = newError("missing_delegated_tree_ref")
)
