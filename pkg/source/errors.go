package source

import (
	"errors"
	"fmt"
)

// FailureClass classifies a fetch failure for retry decisions.
type FailureClass string

const (
	// FailureTransient covers timeouts, connection resets and 5xx-equivalent
	// responses. Safe to retry.
	FailureTransient FailureClass = "transient"

	// FailurePermanent covers rejected auth and malformed requests.
	// Retrying will not help.
	FailurePermanent FailureClass = "permanent"
)

// FetchError is a classified failure from the analytics API.
type FetchError struct {
	Class      FailureClass
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("source %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a FetchError that is safe to retry.
// Unclassified errors are treated as permanent.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class == FailureTransient
	}
	return false
}
