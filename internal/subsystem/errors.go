package subsystem

import "errors"

var (
	// ErrQueueFull is returned when an executor's dispatch queue is at capacity.
	ErrQueueFull = errors.New("subsystem: dispatch queue full")

	// ErrExecutorStopped is returned when submitting to a stopped executor.
	ErrExecutorStopped = errors.New("subsystem: executor stopped")

	// ErrSubsystemNotFound is returned when no subsystem exists at an address.
	ErrSubsystemNotFound = errors.New("subsystem: not found")

	// ErrPlaceNotFound is returned when a place cannot be resolved.
	ErrPlaceNotFound = errors.New("subsystem: place not found")

	// ErrNoAccount is returned when a place has no owning account.
	ErrNoAccount = errors.New("subsystem: place has no account")
)
