package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	ErrNotFound           = errors.New("resource not found")
	ErrArtifactNotFound   = fmt.Errorf("%w: artifact", ErrNotFound)
	ErrTeamNotFound       = fmt.Errorf("%w: team", ErrNotFound)
	ErrFamilyNotFound     = fmt.Errorf("%w: model family", ErrNotFound)
	ErrCompetitionMissing = fmt.Errorf("%w: competition", ErrNotFound)

	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrSingleClass      = errors.New("label vector contains a single class")
	ErrDimension        = errors.New("dimension mismatch")
	ErrNotFitted        = errors.New("model is not fitted")

	ErrIncompatibleArtifact = errors.New("incompatible artifact schema")
	ErrHashMismatch         = errors.New("hash mismatch")
)

// NewNotFoundError builds a wrapped not-found error for a resource id
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// IsNotFoundError reports whether err is any not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
