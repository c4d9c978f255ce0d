package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when a vector length differs from the store dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrBackendUnavailable marks a native vector index that could not be created or loaded.
	ErrBackendUnavailable = errors.New("vector index backend unavailable")
	// ErrNotFound is returned when a document id is unknown.
	ErrNotFound = errors.New("document not found")
	// ErrEmptyText is returned when a document without body text is stored.
	ErrEmptyText = errors.New("document text is empty")
)

// DimensionError carries the expected and actual vector lengths.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// Is reports DimensionError as ErrDimensionMismatch for errors.Is.
func (e *DimensionError) Is(target error) bool { return target == ErrDimensionMismatch }

// CheckDimension returns a *DimensionError when len(vec) != want.
func CheckDimension(vec []float32, want int) error {
	if len(vec) != want {
		return &DimensionError{Want: want, Got: len(vec)}
	}
	return nil
}
