package memory

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

var (
	_ cluster.OnOff                   = (*OnOff)(nil)
	_ cluster.LevelControl            = (*LevelControl)(nil)
	_ cluster.WindowCovering          = (*WindowCovering)(nil)
	_ cluster.ColorControlXY          = (*ColorXY)(nil)
	_ cluster.ColorControlTemperature = (*ColorTemperature)(nil)
	_ cluster.Actions                 = (*Actions)(nil)
	_ cluster.Groups                  = (*Groups)(nil)
	_ cluster.DoorLock                = (*DoorLock)(nil)
)

// OnOff is an in-memory cluster.OnOff.
type OnOff struct {
	base
	IsOnData *reactive.Data[bool]
}

// NewOnOff creates an OnOff with an undefined state.
func NewOnOff() *OnOff {
	c := &OnOff{base: base{name: cluster.NameOnOff}, IsOnData: reactive.NewUndefined[bool]()}
	watch(&c.base, c.IsOnData)
	return c
}

// IsOn implements cluster.OnOff.
func (c *OnOff) IsOn() reactive.Cell[bool] { return c.IsOnData }

// SetOn implements cluster.OnOff.
func (c *OnOff) SetOn(ctx context.Context, on bool) error {
	if err := c.dispatch(ctx, "setOn", map[string]any{"on": on}); err != nil {
		return err
	}
	c.IsOnData.Set(on)
	return nil
}

// Toggle implements cluster.OnOff.
func (c *OnOff) Toggle(ctx context.Context) error {
	return c.SetOn(ctx, !c.IsOnData.Current())
}

// LevelControl is an in-memory cluster.LevelControl.
type LevelControl struct {
	base
	CurrentLevelData *reactive.Data[float64]
	StartupLevelData *reactive.Data[float64]
}

// NewLevelControl creates a LevelControl at level.
func NewLevelControl(level float64) *LevelControl {
	c := &LevelControl{
		base:             base{name: cluster.NameLevelControl},
		CurrentLevelData: reactive.New(level),
		StartupLevelData: reactive.New(level),
	}
	watch(&c.base, c.CurrentLevelData)
	watch(&c.base, c.StartupLevelData)
	return c
}

// CurrentLevel implements cluster.LevelControl.
func (c *LevelControl) CurrentLevel() reactive.Cell[float64] { return c.CurrentLevelData }

// StartupLevel implements cluster.LevelControl.
func (c *LevelControl) StartupLevel() reactive.Cell[float64] { return c.StartupLevelData }

// SetLevel implements cluster.LevelControl.
func (c *LevelControl) SetLevel(ctx context.Context, level float64, transition time.Duration) error {
	args := map[string]any{"level": level, "transitionTimeDs": int(transition / (100 * time.Millisecond))}
	if err := c.dispatch(ctx, "setLevel", args); err != nil {
		return err
	}
	c.CurrentLevelData.Set(level)
	return nil
}

// SetStartupLevel implements cluster.LevelControl.
func (c *LevelControl) SetStartupLevel(ctx context.Context, level float64) error {
	if err := c.dispatch(ctx, "setStartupLevel", map[string]any{"level": level}); err != nil {
		return err
	}
	c.StartupLevelData.Set(level)
	return nil
}

// Stop implements cluster.LevelControl.
func (c *LevelControl) Stop(ctx context.Context) error {
	return c.dispatch(ctx, "stop", nil)
}

// WindowCovering is an in-memory cluster.WindowCovering.
type WindowCovering struct {
	base
	TargetLiftData *reactive.Data[float64]
}

// NewWindowCovering creates a WindowCovering with an undefined position.
func NewWindowCovering() *WindowCovering {
	c := &WindowCovering{base: base{name: cluster.NameWindowCovering}, TargetLiftData: reactive.NewUndefined[float64]()}
	watch(&c.base, c.TargetLiftData)
	return c
}

// TargetLiftPercentage implements cluster.WindowCovering.
func (c *WindowCovering) TargetLiftPercentage() reactive.Cell[float64] { return c.TargetLiftData }

// OpenCover implements cluster.WindowCovering.
func (c *WindowCovering) OpenCover(ctx context.Context) error {
	return c.GoToLiftPercentage(ctx, 0)
}

// CloseCover implements cluster.WindowCovering.
func (c *WindowCovering) CloseCover(ctx context.Context) error {
	return c.GoToLiftPercentage(ctx, 100)
}

// GoToLiftPercentage implements cluster.WindowCovering.
func (c *WindowCovering) GoToLiftPercentage(ctx context.Context, percentage float64) error {
	if err := c.dispatch(ctx, "goToLiftPercentage", map[string]any{"percentage": percentage}); err != nil {
		return err
	}
	c.TargetLiftData.Set(percentage)
	return nil
}

// ColorXY is an in-memory cluster.ColorControlXY.
type ColorXY struct {
	base
	ColorData *reactive.Data[cluster.Color]
	Segments  int
}

// NewColorXY creates a full-colour light with the given number of
// addressable segments (at least one).
func NewColorXY(segments int) *ColorXY {
	if segments < 1 {
		segments = 1
	}
	c := &ColorXY{
		base:      base{name: cluster.NameColorControl},
		ColorData: reactive.NewUndefined[cluster.Color](),
		Segments:  segments,
	}
	watch(&c.base, c.ColorData)
	return c
}

// Variant implements cluster.ColorControl.
func (c *ColorXY) Variant() cluster.ColorVariant { return cluster.ColorXY }

// Color implements cluster.ColorControlXY.
func (c *ColorXY) Color() reactive.Cell[cluster.Color] { return c.ColorData }

// SegmentCount implements cluster.ColorControlXY.
func (c *ColorXY) SegmentCount() int { return c.Segments }

// SetColor implements cluster.ColorControlXY. The first colour becomes the
// reported colour.
func (c *ColorXY) SetColor(ctx context.Context, colors []cluster.Color, over time.Duration) error {
	hex := make([]string, len(colors))
	for i, col := range colors {
		hex[i] = col.Hex()
	}
	if err := c.dispatch(ctx, "setColor", map[string]any{"colors": hex, "overDurationMs": over.Milliseconds()}); err != nil {
		return err
	}
	if len(colors) > 0 {
		c.ColorData.Set(colors[0])
	}
	return nil
}

// ColorTemperature is an in-memory cluster.ColorControlTemperature.
type ColorTemperature struct {
	base
	TemperatureData *reactive.Data[float64]
	MinData         *reactive.Data[float64]
	MaxData         *reactive.Data[float64]
}

// NewColorTemperature creates a tunable-white light with a Kelvin range.
func NewColorTemperature(minK, maxK float64) *ColorTemperature {
	c := &ColorTemperature{
		base:            base{name: cluster.NameColorControl},
		TemperatureData: reactive.NewUndefined[float64](),
		MinData:         reactive.New(minK),
		MaxData:         reactive.New(maxK),
	}
	watch(&c.base, c.TemperatureData)
	return c
}

// Variant implements cluster.ColorControl.
func (c *ColorTemperature) Variant() cluster.ColorVariant { return cluster.ColorTemperature }

// ColorTemperature implements cluster.ColorControlTemperature.
func (c *ColorTemperature) ColorTemperature() reactive.Cell[float64] { return c.TemperatureData }

// ColorTemperatureMin implements cluster.ColorControlTemperature.
func (c *ColorTemperature) ColorTemperatureMin() reactive.Cell[float64] { return c.MinData }

// ColorTemperatureMax implements cluster.ColorControlTemperature.
func (c *ColorTemperature) ColorTemperatureMax() reactive.Cell[float64] { return c.MaxData }

// SetColorTemperature implements cluster.ColorControlTemperature.
func (c *ColorTemperature) SetColorTemperature(ctx context.Context, kelvin float64) error {
	if err := c.dispatch(ctx, "setColorTemperature", map[string]any{"colorTemperature": kelvin}); err != nil {
		return err
	}
	c.TemperatureData.Set(kelvin)
	return nil
}

// Actions is an in-memory cluster.Actions.
type Actions struct {
	base
	ActionListData *reactive.Data[[]cluster.Action]
}

// NewActions creates an Actions cluster with the given action list.
func NewActions(actions ...cluster.Action) *Actions {
	c := &Actions{base: base{name: cluster.NameActions}, ActionListData: reactive.New(actions)}
	watch(&c.base, c.ActionListData)
	return c
}

// ActionList implements cluster.Actions.
func (c *Actions) ActionList() reactive.Cell[[]cluster.Action] { return c.ActionListData }

// ExecuteAction implements cluster.Actions.
func (c *Actions) ExecuteAction(ctx context.Context, actionID int) error {
	return c.dispatch(ctx, "executeAction", map[string]any{"actionId": actionID})
}

// Groups is an in-memory cluster.Groups.
type Groups struct {
	base
	memberships map[uint16]string
}

// NewGroups creates a Groups cluster with no memberships.
func NewGroups() *Groups {
	return &Groups{base: base{name: cluster.NameGroups}, memberships: make(map[uint16]string)}
}

// AddGroup implements cluster.Groups.
func (c *Groups) AddGroup(ctx context.Context, groupID uint16, groupName string) error {
	if err := c.dispatch(ctx, "addGroup", map[string]any{"groupId": groupID, "groupName": groupName}); err != nil {
		return err
	}
	c.mu.Lock()
	c.memberships[groupID] = groupName
	c.mu.Unlock()
	c.onChange.Emit(struct{}{})
	return nil
}

// ListGroupMemberships implements cluster.Groups.
func (c *Groups) ListGroupMemberships(ctx context.Context) ([]uint16, error) {
	if err := c.dispatch(ctx, "listGroupMemberships", nil); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uint16, 0, len(c.memberships))
	for id := range c.memberships {
		ids = append(ids, id)
	}
	return ids, nil
}

// RemoveGroup implements cluster.Groups.
func (c *Groups) RemoveGroup(ctx context.Context, groupID uint16) error {
	if err := c.dispatch(ctx, "removeGroup", map[string]any{"groupId": groupID}); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.memberships, groupID)
	c.mu.Unlock()
	c.onChange.Emit(struct{}{})
	return nil
}

// DoorLock is an in-memory cluster.DoorLock.
type DoorLock struct {
	base
	LockStateData   *reactive.Data[cluster.LockState]
	SupportsUnlatch bool
}

// NewDoorLock creates a DoorLock with an undefined state.
func NewDoorLock(supportsUnlatch bool) *DoorLock {
	c := &DoorLock{
		base:            base{name: cluster.NameDoorLock},
		LockStateData:   reactive.NewUndefined[cluster.LockState](),
		SupportsUnlatch: supportsUnlatch,
	}
	watch(&c.base, c.LockStateData)
	return c
}

// LockState implements cluster.DoorLock.
func (c *DoorLock) LockState() reactive.Cell[cluster.LockState] { return c.LockStateData }

// LockDoor implements cluster.DoorLock.
func (c *DoorLock) LockDoor(ctx context.Context) error {
	return c.command(ctx, "lock", cluster.LockLocked)
}

// UnlockDoor implements cluster.DoorLock.
func (c *DoorLock) UnlockDoor(ctx context.Context) error {
	return c.command(ctx, "unlock", cluster.LockUnlocked)
}

// UnlatchDoor implements cluster.DoorLock. Locks without an unlatch motor
// unlock instead.
func (c *DoorLock) UnlatchDoor(ctx context.Context) error {
	if !c.SupportsUnlatch {
		return c.UnlockDoor(ctx)
	}
	return c.command(ctx, "unlatch", cluster.LockUnlatched)
}

// Toggle implements cluster.DoorLock.
func (c *DoorLock) Toggle(ctx context.Context) error {
	switch c.LockStateData.Current() {
	case cluster.LockLocked, cluster.LockNotFullyLocked:
		return c.UnlockDoor(ctx)
	default:
		return c.LockDoor(ctx)
	}
}

func (c *DoorLock) command(ctx context.Context, method string, result cluster.LockState) error {
	if err := c.dispatch(ctx, method, nil); err != nil {
		return err
	}
	c.LockStateData.Set(result)
	return nil
}
