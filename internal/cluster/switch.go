package cluster

import "github.com/nerrad567/gray-logic-hub/internal/reactive"

// SwitchVariant describes which press gestures a Switch reports.
type SwitchVariant string

// Switch variants.
const (
	SwitchPlain                  SwitchVariant = "plain"
	SwitchLongPress              SwitchVariant = "longPress"
	SwitchMultiPress             SwitchVariant = "multiPress"
	SwitchLongPressAndMultiPress SwitchVariant = "longPressAndMultiPress"
)

// MultiPress is emitted when a button is pressed several times in quick
// succession.
type MultiPress struct {
	PressCount int
}

// Switch is one button of a (possibly multi-button) remote. A remote with
// four buttons exposes four Switch clusters with indexes 0 to 3.
//
// OnLongPress and OnMultiPress return nil when the variant does not support
// the gesture; callers check for nil instead of probing the concrete type.
type Switch interface {
	Cluster
	Variant() SwitchVariant
	Index() int
	TotalCount() int
	Label() string
	OnPress() *reactive.Emitter[struct{}]
	OnLongPress() *reactive.Emitter[struct{}]
	OnMultiPress() *reactive.Emitter[MultiPress]
}

// SupportsLongPress reports whether v emits long presses.
func (v SwitchVariant) SupportsLongPress() bool {
	switch v {
	case SwitchLongPress, SwitchLongPressAndMultiPress:
		return true
	case SwitchPlain, SwitchMultiPress:
		return false
	default:
		Unreachable(v)
		return false
	}
}

// SupportsMultiPress reports whether v emits multi presses.
func (v SwitchVariant) SupportsMultiPress() bool {
	switch v {
	case SwitchMultiPress, SwitchLongPressAndMultiPress:
		return true
	case SwitchPlain, SwitchLongPress:
		return false
	default:
		Unreachable(v)
		return false
	}
}
