package device

import (
	"fmt"
	"time"
)

// Source identifies the vendor integration that produced a device.
type Source string

// Known sources.
const (
	SourceMatter      Source = "matter"
	SourceWLED        Source = "wled"
	SourceTuya        Source = "tuya"
	SourceSmartThings Source = "smartthings"
	SourceNuki        Source = "nuki"
	SourceHomeWizard  Source = "homewizard"
	SourceAndroid     Source = "android"
	SourceLEDArt      Source = "ledart"
	SourceMQTT        Source = "mqtt"
	SourceBambuLab    Source = "bambulab"
)

// AllSources lists every recognised source.
var AllSources = []Source{
	SourceMatter, SourceWLED, SourceTuya, SourceSmartThings, SourceNuki,
	SourceHomeWizard, SourceAndroid, SourceLEDArt, SourceMQTT, SourceBambuLab,
}

// ParseSource converts s to a Source.
func ParseSource(s string) (Source, error) {
	for _, src := range AllSources {
		if string(src) == s {
			return src, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
}

// Status is the reachability of a device.
type Status string

// Device statuses.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// StoredDevice is the persisted side-table record for a device.
//
// Records are created the first time a source reports the device and are
// never removed; a device that disappears is only marked offline so the
// user's name and room survive transient unavailability.
type StoredDevice struct {
	// ID is the globally unique device id.
	ID string `json:"id"`

	// Source is the integration that last reported the device.
	Source Source `json:"source"`

	// Status is online while the source reports the device.
	Status Status `json:"status"`

	// LastSeen is when the device was last reported (UTC).
	LastSeen time.Time `json:"lastSeen"`

	// Name is the user-assigned display name, empty when unset.
	Name string `json:"name,omitempty"`

	// Room is the room the user placed the device in, empty when unset.
	Room string `json:"room,omitempty"`
}

// Room is a room derived from device assignments.
type Room struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon,omitempty"`
}

// roomInfo is the persisted part of a room.
type roomInfo struct {
	Icon string `json:"icon,omitempty"`
}
