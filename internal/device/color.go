package device

import "unicode/utf16"

// pastelColors is the palette rooms and groups draw their colour from.
var pastelColors = []string{
	"#8FB5D6", "#7DD4A8", "#A4CD76", "#8B9FDE",
	"#73D1B8", "#E8B563", "#D4A5A5", "#B298DC",
	"#6ECEB2", "#A8D08D", "#F4A261", "#E07A5F",
}

// PastelColor returns a colour for name that is stable across calls and
// restarts. The hash runs over UTF-16 code units with 32-bit wrap-around so
// existing dashboards keep their colours.
func PastelColor(name string) string {
	var hash int32
	for _, unit := range utf16.Encode([]rune(name)) {
		hash = int32(unit) + ((hash << 5) - hash)
	}
	idx := int64(hash)
	if idx < 0 {
		idx = -idx
	}
	return pastelColors[idx%int64(len(pastelColors))]
}
