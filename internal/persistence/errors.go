package persistence

import "errors"

var (
	// ErrModelNotFound is returned when no row exists for an address.
	ErrModelNotFound = errors.New("persistence: model not found")

	// ErrMissingPlace is returned when a model is saved without a place id.
	ErrMissingPlace = errors.New("persistence: place id is required")
)
