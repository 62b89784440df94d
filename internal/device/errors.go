package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidSource is returned when a source value is not recognised.
	ErrInvalidSource = errors.New("device: invalid source")

	// ErrGroupNotFound is returned when a group ID does not exist.
	ErrGroupNotFound = errors.New("group: not found")

	// ErrGroupNameTaken is returned when another group already uses the name.
	ErrGroupNameTaken = errors.New("group: name already exists")

	// ErrInvalidGroup is returned when group validation fails.
	ErrInvalidGroup = errors.New("group: invalid")

	// ErrPaletteNotFound is returned when a palette ID does not exist.
	ErrPaletteNotFound = errors.New("palette: not found")

	// ErrInvalidPalette is returned when a palette has no colours or a bad one.
	ErrInvalidPalette = errors.New("palette: invalid")
)
