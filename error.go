package veccache

import "fmt"

// ErrorCode enumerates the cache's error categories (spec §7).
type ErrorCode int

const (
	// Unknown represents an unspecified error condition.
	Unknown ErrorCode = iota
	// InvalidInput marks caller errors such as deserializing an Invalid
	// FileIndex or malformed UTF-8 in a string IdentityMapKey.
	InvalidInput
	// IoFailure wraps an underlying buffer-manager read/write/seek failure.
	IoFailure
	// Corruption marks a detected on-disk self-inconsistency (an offset past
	// end of file, a chunk link pointing backward, ...). It is surfaced as
	// IoFailure with an explanatory wrap, per spec §7.
	Corruption
	// LockPoisoned is fatal: a protected data structure was left
	// inconsistent by a panicked goroutine holding it.
	LockPoisoned
)

func (c ErrorCode) String() string {
	switch c {
	case InvalidInput:
		return "InvalidInput"
	case IoFailure:
		return "IoFailure"
	case Corruption:
		return "Corruption"
	case LockPoisoned:
		return "LockPoisoned"
	default:
		return "Unknown"
	}
}

// Error is the cache's error type, carrying a category code, the wrapped
// cause, and optional user data useful for diagnostics.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.UserData != nil {
		return fmt.Errorf("%s: user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
	}
	return fmt.Errorf("%s: %w", e.Code, e.Err).Error()
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the given code.
func NewError(code ErrorCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

// NewErrorWithData wraps err with the given code and attaches userData for diagnostics.
func NewErrorWithData(code ErrorCode, err error, userData any) *Error {
	return &Error{Code: code, Err: err, UserData: userData}
}

// NewCorruption wraps err as a Corruption, surfaced as IoFailure per spec §7
// ("treated as IoFailure with an explanatory wrap").
func NewCorruption(err error) *Error {
	return &Error{Code: IoFailure, Err: fmt.Errorf("corruption: %w", err)}
}
