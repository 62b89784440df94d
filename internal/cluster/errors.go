package cluster

import (
	"errors"
	"fmt"
)

// Domain errors for the cluster package.
var (
	// ErrUnknownCluster is returned when a capability name is not recognised.
	ErrUnknownCluster = errors.New("cluster: unknown capability")

	// ErrUnsupported is returned by a command the concrete cluster cannot
	// perform (for example unlatching a lock without an unlatch motor).
	ErrUnsupported = errors.New("cluster: command not supported")

	// ErrInvalidColor is returned when a colour string cannot be parsed.
	ErrInvalidColor = errors.New("cluster: invalid colour")

	// ErrInvalidMode is returned when a thermostat mode is not recognised.
	ErrInvalidMode = errors.New("cluster: invalid thermostat mode")
)

// Unreachable panics with a description of v. Switches over closed enums
// call it from their default arm: reaching it means a new enum value was
// added without handling it.
func Unreachable(v any) {
	panic(fmt.Sprintf("unreachable: unhandled value %#v", v))
}
