package domain

import "errors"

var (
	// ErrUnavailable indicates that no health repository is reachable.
	ErrUnavailable = errors.New("health data unavailable")
	// ErrNotAuthorized indicates that the repository refused access to a data type.
	ErrNotAuthorized = errors.New("not authorized for data type")
	// ErrNoPreference indicates the user has not chosen a preferred unit.
	ErrNoPreference = errors.New("no preferred unit")
)

// AuthError reports a failed authorization request.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "authorization failed: " + e.Err.Error() }

func (e *AuthError) Unwrap() error { return e.Err }

// WriteError reports a failed sample write. Err is ErrUnavailable when there
// was no repository to write to, otherwise the repository's own error.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "write sample: " + e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }

var (
	// ErrInvalidAmount indicates a consumption amount that is not positive or
	// has no volume unit.
	ErrInvalidAmount = errors.New("amount must be a positive volume")
	// ErrAmountTooLarge indicates a single entry above MaxEntry.
	ErrAmountTooLarge = errors.New("amount exceeds 10 L")
)
