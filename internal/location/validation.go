package location

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Validation constants matching the device package conventions.
const (
	maxNameLength = 100
	maxIDLength   = 64
	idPattern     = `^[a-z0-9]+(?:[-_][a-z0-9]+)*$`
)

var idRegex = regexp.MustCompile(idPattern)

// ValidateName checks if a target or device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateID checks that id is lowercase alphanumeric with - or _ separators.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidID, maxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q must be lowercase alphanumeric with - or _", ErrInvalidID, id)
	}
	return nil
}

// ValidateCoordinates checks latitude is within [-90, 90] and longitude
// within [-180, 180].
func ValidateCoordinates(c Coordinates) error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidCoordinates)
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidCoordinates)
	}
	return nil
}

// ValidateTarget checks every field of t.
func ValidateTarget(t Target) error {
	if err := ValidateID(t.ID); err != nil {
		return err
	}
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	return ValidateCoordinates(t.Coordinates)
}
