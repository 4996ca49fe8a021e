package types

import "errors"

var (
	// ErrInvalidTransition is returned when a status change is not an edge of the
	// entity's state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidValue is returned when a decoded entity carries a value outside
	// one of the closed enumerations.
	ErrInvalidValue = errors.New("invalid enumerated value")
)
