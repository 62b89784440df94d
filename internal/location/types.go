package location

import "time"

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Target is a named place devices can be in range of.
type Target struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Coordinates Coordinates `json:"coordinates" yaml:"coordinates"`
}

// Device is a position-reporting device. Devices are created on their
// first report with the ID as name.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Update is one position report.
type Update struct {
	DeviceID  string    `json:"deviceId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceStatus is a device with its last known position, if any.
type DeviceStatus struct {
	Device
	LastKnown *Update `json:"lastKnownLocation"`
}

// TargetStatus is a target with its distance from one device.
type TargetStatus struct {
	Target
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}
