package cluster

import (
	"context"

	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// ThermostatMode is the operating mode of a Thermostat.
type ThermostatMode string

// Thermostat modes.
const (
	ModeOff    ThermostatMode = "off"
	ModeHeat   ThermostatMode = "heat"
	ModeCool   ThermostatMode = "cool"
	ModeAuto   ThermostatMode = "auto"
	ModeManual ThermostatMode = "manual"
)

// ParseThermostatMode converts a string to a ThermostatMode.
func ParseThermostatMode(s string) (ThermostatMode, error) {
	switch m := ThermostatMode(s); m {
	case ModeOff, ModeHeat, ModeCool, ModeAuto, ModeManual:
		return m, nil
	default:
		return "", ErrInvalidMode
	}
}

// RequestsHeat reports whether a thermostat in mode m wants the heat source
// running.
func (m ThermostatMode) RequestsHeat() bool {
	return m == ModeHeat || m == ModeAuto
}

// ThermostatRole places a thermostat in a master/slave heating hierarchy.
// A master controls the boiler or heat pump; slaves control individual
// rooms.
type ThermostatRole string

// Thermostat roles.
const (
	RoleNone   ThermostatRole = ""
	RoleMaster ThermostatRole = "master"
	RoleSlave  ThermostatRole = "slave"
)

// Thermostat controls heating for a zone. Temperatures are in degrees
// Celsius.
type Thermostat interface {
	Cluster
	Role() ThermostatRole
	CurrentTemperature() reactive.Cell[float64]
	TargetTemperature() reactive.Cell[float64]
	Mode() reactive.Cell[ThermostatMode]
	IsHeating() reactive.Cell[bool]
	SetTargetTemperature(ctx context.Context, celsius float64) error
	SetMode(ctx context.Context, mode ThermostatMode) error
}
