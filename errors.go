package vocab

import (
	"errors"
	"fmt"
)

// Common errors returned by the vocabulary service.
var (
	// ErrNotFound is returned when a term is not in the store.
	ErrNotFound = errors.New("term not found")

	// ErrEmptyTerm is returned when a term normalizes to the empty string.
	ErrEmptyTerm = errors.New("term cannot be empty")

	// ErrTermTooLong is returned when a term exceeds MaxTermLength.
	ErrTermTooLong = errors.New("term exceeds maximum length")

	// ErrInvalidCategory is returned when a category is outside the tag set.
	ErrInvalidCategory = errors.New("invalid term category")

	// ErrInvalidFeedback is returned when a feedback event fails validation.
	ErrInvalidFeedback = errors.New("invalid feedback event")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrRunInProgress is returned when a manual snapshot overlaps a running one.
	ErrRunInProgress = errors.New("snapshot run already in progress")

	// ErrRunPanicked wraps a panic recovered from an extraction or maintenance run.
	ErrRunPanicked = errors.New("run panicked")

	// ErrNoRefiner is returned by Refine when no text-generation client is configured.
	ErrNoRefiner = errors.New("no refiner configured")
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}
