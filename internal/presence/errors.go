package presence

import "errors"

var (
	// ErrInvalidState is returned for a report that is neither home nor away.
	ErrInvalidState = errors.New("presence: invalid state")

	// ErrInvalidHost is returned for an empty host id.
	ErrInvalidHost = errors.New("presence: invalid host id")
)
