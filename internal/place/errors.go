package place

import "errors"

var (
	// ErrPlaceNotFound is returned when a place ID does not exist.
	ErrPlaceNotFound = errors.New("place not found")

	// ErrInvalidPlace is returned when a place fails validation.
	ErrInvalidPlace = errors.New("invalid place")
)
