package errors

import "fmt"

var (
	// ErrAuthentication covers every credential failure (malformed, expired,
	// unknown user). Deliberately generic: the client only learns that the
	// connection was refused.
	ErrAuthentication = fmt.Errorf("authentication error")

	// ErrUnauthorized is returned when the caller is not an accepted
	// participant of the conversation. NotFound lookups collapse into it so
	// conversation existence is never leaked.
	ErrUnauthorized = fmt.Errorf("unauthorized")

	ErrInvalidMessage = fmt.Errorf("invalid message")
	ErrPersistence    = fmt.Errorf("persistence failure")
	ErrNotFound       = fmt.Errorf("not found")

	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no censored words have been found")
)
