package core

import "errors"

var (
	// ErrSessionNotFound is returned for lifecycle calls with an unknown id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMemoryNotFound is returned when a memory entry id is absent.
	ErrMemoryNotFound = errors.New("memory entry not found")

	// ErrInvalidEntry marks a memory entry that failed validation.
	ErrInvalidEntry = errors.New("invalid memory entry")

	// ErrNoKey means no usable key exists for a provider. Decryption
	// failures collapse into this, they are not surfaced as errors.
	ErrNoKey = errors.New("no key configured")

	// ErrTransition is returned in strict mode for a disallowed status jump.
	ErrTransition = errors.New("status transition not allowed")
)
