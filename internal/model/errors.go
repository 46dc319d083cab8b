package model

import "errors"

var (
	// ErrMissingAddress is returned when attributes lack a parsable base:address.
	ErrMissingAddress = errors.New("model: missing address")

	// ErrModelNotFound is returned when a model is not present in the store.
	ErrModelNotFound = errors.New("model: not found")
)
