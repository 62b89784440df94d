package cluster

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// ColorVariant distinguishes full-colour lights from tunable-white ones.
// Both share NameColorControl.
type ColorVariant string

// Colour control variants.
const (
	ColorXY          ColorVariant = "xy"
	ColorTemperature ColorVariant = "temperature"
)

// ColorControl is the part shared by both colour variants.
type ColorControl interface {
	Cluster
	Variant() ColorVariant
}

// ColorControlXY is a full-colour light. Addressable strips report more
// than one segment and accept one colour per segment.
type ColorControlXY interface {
	ColorControl
	Color() reactive.Cell[Color]
	SetColor(ctx context.Context, colors []Color, over time.Duration) error
	SegmentCount() int
}

// ColorControlTemperature is a tunable-white light. Temperatures are in
// Kelvin.
type ColorControlTemperature interface {
	ColorControl
	ColorTemperature() reactive.Cell[float64]
	ColorTemperatureMin() reactive.Cell[float64]
	ColorTemperatureMax() reactive.Cell[float64]
	SetColorTemperature(ctx context.Context, kelvin float64) error
}
