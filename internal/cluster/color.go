package cluster

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color is an 8-bit RGB colour.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// HSV is a colour in hue/saturation/value form as shown to users: hue in
// degrees (0-360), saturation and value in percent (0-100).
type HSV struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Value      float64 `json:"value"`
}

// ParseHex parses "#rrggbb" or "rrggbb".
func ParseHex(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Hex returns the colour as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// FromHSV converts fractional HSV (each component 0-1) to RGB.
func FromHSV(h, s, v float64) Color {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return Color{R: to8(r), G: to8(g), B: to8(b)}
}

// FromUserHSV converts user-facing HSV (degrees and percent) to RGB.
func FromUserHSV(hsv HSV) Color {
	return FromHSV(hsv.Hue/360, hsv.Saturation/100, hsv.Value/100)
}

// HSV converts the colour to user-facing HSV. Hue is rounded to a whole
// degree; saturation and value to two decimals.
func (c Color) HSV() HSV {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255

	maxC := math.Max(r, math.Max(g, b))
	diff := maxC - math.Min(r, math.Min(g, b))
	if diff == 0 {
		return HSV{Hue: 0, Saturation: 0, Value: round2(maxC * 100)}
	}

	calc := func(ch float64) float64 { return (maxC-ch)/6/diff + 0.5 }
	rr, gg, bb := calc(r), calc(g), calc(b)

	var h float64
	switch maxC {
	case r:
		h = bb - gg
	case g:
		h = 1.0/3 + rr - bb
	default:
		h = 2.0/3 + gg - rr
	}
	if h < 0 {
		h++
	} else if h > 1 {
		h--
	}

	return HSV{
		Hue:        math.Round(h * 360),
		Saturation: round2(diff / maxC * 100),
		Value:      round2(maxC * 100),
	}
}

func to8(f float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, f)) * 255))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
