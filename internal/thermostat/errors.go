package thermostat

import "errors"

var (
	// ErrNoRoomThermostat is returned when a room has no controllable
	// thermostat.
	ErrNoRoomThermostat = errors.New("thermostat: room has no thermostat")

	// ErrInvalidTarget is returned for a target outside the accepted range.
	ErrInvalidTarget = errors.New("thermostat: target temperature out of range")
)
