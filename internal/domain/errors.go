package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrEmbeddingProvider    = errors.New("embedding provider error")
	ErrGenerationProvider   = errors.New("generation provider error")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
	ErrMalformedGeneration  = errors.New("malformed generation")
	ErrEmptyGeneration      = errors.New("empty generation")
	ErrInvalidQuery         = errors.New("invalid query")
	ErrInvalidMode          = errors.New("invalid mode")
	ErrUnsupportedDocument  = errors.New("unsupported document")
	ErrDocumentTooLarge     = errors.New("document too large")
	// ErrDocumentNotFound is only returned by catalog lookups. Similarity
	// search treats an unknown document as empty.
	ErrDocumentNotFound = errors.New("document not found")
)

// DimensionMismatchError reports a vector whose length differs from the
// established dimension.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", ErrDimensionMismatch, e.Want, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// MalformedGenerationError reports structured model output that failed validation.
type MalformedGenerationError struct {
	Reason string
}

func (e *MalformedGenerationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedGeneration, e.Reason)
}

func (e *MalformedGenerationError) Is(target error) bool { return target == ErrMalformedGeneration }

// Malformed is shorthand for a MalformedGenerationError with a formatted reason.
func Malformed(format string, args ...any) error {
	return &MalformedGenerationError{Reason: fmt.Sprintf(format, args...)}
}
