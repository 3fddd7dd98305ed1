package domain

import "errors"

var (
	// ErrNotFound is returned when an entity is not found in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidState is returned when a state transition is not a legal
	// edge of the review state machine. State is never mutated.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrInvalidKind is returned for an unknown content kind.
	ErrInvalidKind = errors.New("invalid content kind")

	// ErrInvalidContent is returned when content fails basic validation
	// (no segments, empty segment).
	ErrInvalidContent = errors.New("invalid content")

	// ErrGeneration is returned when the content generator fails or
	// produces empty output. The slot is aborted with no partial content.
	ErrGeneration = errors.New("content generation failed")
)
