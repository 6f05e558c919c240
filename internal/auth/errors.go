package auth

import "errors"

var (
	// ErrMissingAPIKey is returned when no Authorization header is present.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidAPIKey is returned when the presented key resolves to no actor.
	ErrInvalidAPIKey = errors.New("invalid API key")
)
