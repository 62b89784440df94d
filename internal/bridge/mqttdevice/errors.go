package mqttdevice

import "errors"

var (
	// ErrUnknownDevice is returned for a state report from an undeclared device.
	ErrUnknownDevice = errors.New("mqttdevice: unknown device")

	// ErrUnknownCluster is returned for a state report on an undeclared key.
	ErrUnknownCluster = errors.New("mqttdevice: unknown cluster key")

	// ErrInvalidState is returned when a state payload cannot be applied.
	ErrInvalidState = errors.New("mqttdevice: invalid state payload")

	// ErrNotStarted is returned by operations that need a running bridge.
	ErrNotStarted = errors.New("mqttdevice: bridge not started")
)
