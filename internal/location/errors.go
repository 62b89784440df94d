package location

import "errors"

var (
	// ErrTargetNotFound is returned when a target ID does not exist.
	ErrTargetNotFound = errors.New("location: target not found")

	// ErrDeviceNotFound is returned when a tracked device ID does not exist.
	ErrDeviceNotFound = errors.New("location: device not found")

	// ErrNoFix is returned when a device has not reported a position yet.
	ErrNoFix = errors.New("location: no position reported")

	// ErrInvalidID is returned when a target or device ID is malformed.
	ErrInvalidID = errors.New("location: invalid id")

	// ErrInvalidName is returned when a name fails validation.
	ErrInvalidName = errors.New("location: invalid name")

	// ErrInvalidCoordinates is returned for a latitude or longitude out of range.
	ErrInvalidCoordinates = errors.New("location: invalid coordinates")
)
