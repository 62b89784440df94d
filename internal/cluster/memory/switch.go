package memory

import (
	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

var _ cluster.Switch = (*Switch)(nil)

// Switch is an in-memory cluster.Switch.
type Switch struct {
	base
	variant cluster.SwitchVariant
	index   int
	total   int
	label   string

	press      reactive.Emitter[struct{}]
	longPress  *reactive.Emitter[struct{}]
	multiPress *reactive.Emitter[cluster.MultiPress]
}

// NewSwitch creates button index of a remote with total buttons.
func NewSwitch(variant cluster.SwitchVariant, index, total int, label string) *Switch {
	c := &Switch{
		base:    base{name: cluster.NameSwitch},
		variant: variant,
		index:   index,
		total:   total,
		label:   label,
	}
	if variant.SupportsLongPress() {
		c.longPress = &reactive.Emitter[struct{}]{}
	}
	if variant.SupportsMultiPress() {
		c.multiPress = &reactive.Emitter[cluster.MultiPress]{}
	}
	return c
}

// Variant implements cluster.Switch.
func (c *Switch) Variant() cluster.SwitchVariant { return c.variant }

// Index implements cluster.Switch.
func (c *Switch) Index() int { return c.index }

// TotalCount implements cluster.Switch.
func (c *Switch) TotalCount() int { return c.total }

// Label implements cluster.Switch.
func (c *Switch) Label() string { return c.label }

// OnPress implements cluster.Switch.
func (c *Switch) OnPress() *reactive.Emitter[struct{}] { return &c.press }

// OnLongPress implements cluster.Switch.
func (c *Switch) OnLongPress() *reactive.Emitter[struct{}] { return c.longPress }

// OnMultiPress implements cluster.Switch.
func (c *Switch) OnMultiPress() *reactive.Emitter[cluster.MultiPress] { return c.multiPress }

// Press simulates a short press.
func (c *Switch) Press() {
	c.press.Emit(struct{}{})
	c.onChange.Emit(struct{}{})
}

// LongPress simulates a long press. It is ignored by variants without
// long-press support.
func (c *Switch) LongPress() {
	if c.longPress == nil {
		return
	}
	c.longPress.Emit(struct{}{})
	c.onChange.Emit(struct{}{})
}

// MultiPress simulates count presses in quick succession. It is ignored by
// variants without multi-press support.
func (c *Switch) MultiPress(count int) {
	if c.multiPress == nil {
		return
	}
	c.multiPress.Emit(cluster.MultiPress{PressCount: count})
	c.onChange.Emit(struct{}{})
}
