package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidUser indicates an invalid user identifier.
	ErrInvalidUser = errors.New("invalid user")
	// ErrInvalidLab indicates an invalid lab identifier.
	ErrInvalidLab = errors.New("invalid lab")
	// ErrInvalidDuration indicates a non-positive session duration.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrSessionNotFound indicates a requested session could not be found.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded indicates the session has already terminated.
	ErrSessionEnded = errors.New("session has ended")
)
