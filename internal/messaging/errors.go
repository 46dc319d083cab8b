package messaging

import "errors"

// Domain errors for the messaging package.
var (
	// ErrInvalidAddress is returned when an address string cannot be parsed.
	ErrInvalidAddress = errors.New("messaging: invalid address")

	// ErrInvalidMessage is returned when a message is missing required fields.
	ErrInvalidMessage = errors.New("messaging: invalid message")
)
