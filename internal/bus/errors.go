package bus

import "errors"

var (
	// ErrDecode is returned when a payload is not a valid platform message.
	ErrDecode = errors.New("bus: invalid payload")

	// ErrPlaceMismatch is returned when the payload's place id differs from
	// the place in its topic.
	ErrPlaceMismatch = errors.New("bus: place id does not match topic")

	// ErrNotStarted is returned when a message arrives before Start.
	ErrNotStarted = errors.New("bus: router not started")
)
