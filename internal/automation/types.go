package automation

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
)

// Scene is a named bundle of actions, optionally fired by triggers.
//
// A scene without triggers is manual-only. Within one trigger evaluation at
// most one trigger entry fires the scene: entries are OR'd, the conditions
// inside an entry are AND'd.
type Scene struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Icon     string         `json:"icon,omitempty"`
	Actions  []Action       `json:"actions"`
	Triggers []TriggerEntry `json:"triggers,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TriggerEntry pairs a trigger with the conditions gating it.
type TriggerEntry struct {
	Trigger    Trigger     `json:"trigger"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// TriggerType identifies what kind of event fires a scene.
type TriggerType string

// Trigger types.
const (
	TriggerOccupancy           TriggerType = "occupancy"
	TriggerButtonPress         TriggerType = "button-press"
	TriggerHostArrival         TriggerType = "host-arrival"
	TriggerHostDeparture       TriggerType = "host-departure"
	TriggerWebhook             TriggerType = "webhook"
	TriggerAnybodyHome         TriggerType = "anybody-home"
	TriggerNobodyHome          TriggerType = "nobody-home"
	TriggerNobodyHomeTimeout   TriggerType = "nobody-home-timeout"
	TriggerCron                TriggerType = "cron"
	TriggerLocationWithinRange TriggerType = "location-within-range"
	TriggerPowerThreshold      TriggerType = "power-threshold"

	// TriggerManual is recorded for runs started by hand. It is never a
	// valid scene trigger.
	TriggerManual TriggerType = "manual"
)

// AllTriggerTypes returns every trigger type a scene may declare.
func AllTriggerTypes() []TriggerType {
	return []TriggerType{
		TriggerOccupancy,
		TriggerButtonPress,
		TriggerHostArrival,
		TriggerHostDeparture,
		TriggerWebhook,
		TriggerAnybodyHome,
		TriggerNobodyHome,
		TriggerNobodyHomeTimeout,
		TriggerCron,
		TriggerLocationWithinRange,
		TriggerPowerThreshold,
	}
}

// Direction is the crossing a power-threshold trigger waits for.
type Direction string

// Power threshold directions.
const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Trigger describes an event. The same type is used for the triggers
// declared on scenes and for the events trackers report; which fields are
// meaningful depends on Type.
type Trigger struct {
	Type TriggerType `json:"type"`

	// occupancy, button-press, location-within-range, power-threshold
	DeviceID string `json:"deviceId,omitempty"`

	// occupancy: the reported state. On a scene trigger, nil matches both.
	Occupied *bool `json:"occupied,omitempty"`

	// button-press
	ButtonIndex *int `json:"buttonIndex,omitempty"`

	// host-arrival, host-departure
	HostID string `json:"hostId,omitempty"`

	// webhook
	WebhookName string `json:"webhookName,omitempty"`

	// cron
	IntervalMinutes int `json:"intervalMinutes,omitempty"`

	// location-within-range
	TargetID     string  `json:"targetId,omitempty"`
	RangeKm      float64 `json:"rangeKm,omitempty"`
	EnteredRange *bool   `json:"enteredRange,omitempty"`

	// power-threshold
	ThresholdWatts *float64  `json:"thresholdWatts,omitempty"`
	Direction      Direction `json:"direction,omitempty"`
}

// Matches reports whether the event ev fires the scene trigger t. The type
// and every discriminating field for that type must be equal.
func (t Trigger) Matches(ev Trigger) bool {
	if t.Type != ev.Type {
		return false
	}
	switch t.Type {
	case TriggerOccupancy:
		if t.DeviceID != ev.DeviceID {
			return false
		}
		return t.Occupied == nil || (ev.Occupied != nil && *t.Occupied == *ev.Occupied)
	case TriggerButtonPress:
		return t.DeviceID == ev.DeviceID && equalPtr(t.ButtonIndex, ev.ButtonIndex)
	case TriggerHostArrival, TriggerHostDeparture:
		return t.HostID == ev.HostID
	case TriggerWebhook:
		return t.WebhookName == ev.WebhookName
	case TriggerAnybodyHome, TriggerNobodyHome, TriggerNobodyHomeTimeout:
		return true
	case TriggerCron:
		return t.IntervalMinutes == ev.IntervalMinutes
	case TriggerLocationWithinRange:
		return t.DeviceID == ev.DeviceID && t.TargetID == ev.TargetID && t.RangeKm == ev.RangeKm
	case TriggerPowerThreshold:
		return t.DeviceID == ev.DeviceID && equalPtr(t.ThresholdWatts, ev.ThresholdWatts) && t.Direction == ev.Direction
	case TriggerManual:
		return false
	default:
		cluster.Unreachable(t.Type)
		return false
	}
}

// Source describes the trigger for the execution log, e.g. the device or
// webhook that caused it.
func (t Trigger) Source() string {
	switch t.Type {
	case TriggerOccupancy, TriggerButtonPress, TriggerLocationWithinRange, TriggerPowerThreshold:
		return t.DeviceID
	case TriggerHostArrival, TriggerHostDeparture:
		return t.HostID
	case TriggerWebhook:
		return t.WebhookName
	case TriggerCron:
		return strconv.Itoa(t.IntervalMinutes) + "m"
	default:
		return ""
	}
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ConditionType identifies a condition kind.
type ConditionType string

// Condition types.
const (
	ConditionHostHome   ConditionType = "host-home"
	ConditionDeviceOn   ConditionType = "device-on"
	ConditionTimeWindow ConditionType = "time-window"
	ConditionAnyoneHome ConditionType = "anyone-home"
	ConditionCustomCode ConditionType = "custom-code"
	ConditionVariable   ConditionType = "variable"
	ConditionDelay      ConditionType = "delay"
)

// AllConditionTypes returns every condition type.
func AllConditionTypes() []ConditionType {
	return []ConditionType{
		ConditionHostHome,
		ConditionDeviceOn,
		ConditionTimeWindow,
		ConditionAnyoneHome,
		ConditionCustomCode,
		ConditionVariable,
		ConditionDelay,
	}
}

// Weekday keys of a time-window condition.
const (
	Monday    = "monday"
	Tuesday   = "tuesday"
	Wednesday = "wednesday"
	Thursday  = "thursday"
	Friday    = "friday"
	Saturday  = "saturday"
	Sunday    = "sunday"
)

// weekdayKeys is indexed by time.Weekday.
var weekdayKeys = [7]string{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// TimeWindow is a daily span in "HH:MM" form. Start after End spans
// midnight.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Condition is a predicate gating a trigger entry. Which fields are
// meaningful depends on Type.
type Condition struct {
	Type ConditionType `json:"type"`

	// CheckOnManual makes the condition apply to manual runs as well.
	CheckOnManual bool `json:"checkOnManual,omitempty"`

	// host-home
	HostID       string `json:"hostId,omitempty"`
	ShouldBeHome bool   `json:"shouldBeHome,omitempty"`

	// device-on
	DeviceID   string `json:"deviceId,omitempty"`
	ShouldBeOn bool   `json:"shouldBeOn,omitempty"`

	// time-window, keyed by lower-case weekday name
	Windows map[string]TimeWindow `json:"windows,omitempty"`

	// custom-code: a Lua chunk
	Code string `json:"code,omitempty"`

	// variable
	VariableName string `json:"variableName,omitempty"`
	ShouldBeTrue bool   `json:"shouldBeTrue,omitempty"`
	Invert       bool   `json:"invert,omitempty"`

	// delay
	Seconds int `json:"seconds,omitempty"`
}

// ActionKind selects the payload of an Action.
type ActionKind string

// Action kinds. The first four name device clusters; the rest are engine
// actions without a device target.
const (
	ActionOnOff           ActionKind = ActionKind(cluster.NameOnOff)
	ActionWindowCovering  ActionKind = ActionKind(cluster.NameWindowCovering)
	ActionLevelControl    ActionKind = ActionKind(cluster.NameLevelControl)
	ActionColorControl    ActionKind = ActionKind(cluster.NameColorControl)
	ActionHTTPRequest     ActionKind = "http-request"
	ActionNotification    ActionKind = "notification"
	ActionSetVariable     ActionKind = "set-variable"
	ActionRoomTemperature ActionKind = "room-temperature"
)

// AllActionKinds returns every action kind.
func AllActionKinds() []ActionKind {
	return []ActionKind{
		ActionOnOff,
		ActionWindowCovering,
		ActionLevelControl,
		ActionColorControl,
		ActionHTTPRequest,
		ActionNotification,
		ActionSetVariable,
		ActionRoomTemperature,
	}
}

// targetsDevices reports whether actions of kind k need a device or group.
func (k ActionKind) targetsDevices() bool {
	switch k {
	case ActionOnOff, ActionWindowCovering, ActionLevelControl, ActionColorControl:
		return true
	default:
		return false
	}
}

// OnOffPayload switches every OnOff cluster of the target.
type OnOffPayload struct {
	IsOn bool `json:"isOn"`
}

// WindowCoveringPayload moves every cover of the target.
type WindowCoveringPayload struct {
	TargetPositionLiftPercentage float64 `json:"targetPositionLiftPercentage"`
}

// LevelControlPayload dims to Level (0-100). A positive DurationSeconds
// ramps there gradually.
type LevelControlPayload struct {
	Level           float64 `json:"level"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// ColorControlPayload sets a user HSV colour, or applies a palette when
// PaletteID is set. Palettes are only valid on group actions.
type ColorControlPayload struct {
	Hue        float64 `json:"hue,omitempty"`
	Saturation float64 `json:"saturation,omitempty"`
	Value      float64 `json:"value,omitempty"`
	PaletteID  string  `json:"paletteId,omitempty"`
}

// HTTPRequestPayload calls an external URL.
type HTTPRequestPayload struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Body    map[string]any    `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// NotificationPayload is sent through the notifier.
type NotificationPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// SetVariablePayload assigns a boolean variable.
type SetVariablePayload struct {
	VariableName  string `json:"variableName"`
	VariableValue bool   `json:"variableValue"`
}

// RoomTemperaturePayload overrides the target temperature of a room.
type RoomTemperaturePayload struct {
	RoomName          string  `json:"roomName"`
	TargetTemperature float64 `json:"targetTemperature"`
}

// Action is one step of a scene. Device actions target either DeviceID or
// GroupID; group members listed in ExcludeDeviceIDs are skipped. Exactly
// one payload pointer matching Kind is set.
type Action struct {
	DeviceID         string
	GroupID          string
	ExcludeDeviceIDs []string
	Kind             ActionKind

	OnOff           *OnOffPayload
	WindowCovering  *WindowCoveringPayload
	LevelControl    *LevelControlPayload
	ColorControl    *ColorControlPayload
	HTTPRequest     *HTTPRequestPayload
	Notification    *NotificationPayload
	SetVariable     *SetVariablePayload
	RoomTemperature *RoomTemperaturePayload
}

// actionJSON is the stored form of an Action: the payload lives under
// "action" and its shape depends on "cluster".
type actionJSON struct {
	DeviceID         string          `json:"deviceId,omitempty"`
	GroupID          string          `json:"groupId,omitempty"`
	ExcludeDeviceIDs []string        `json:"excludeDeviceIds,omitempty"`
	Cluster          ActionKind      `json:"cluster"`
	Action           json.RawMessage `json:"action"`
}

// payload returns the payload pointer matching Kind, nil if unset.
func (a Action) payload() any {
	switch a.Kind {
	case ActionOnOff:
		return nilIfNil(a.OnOff)
	case ActionWindowCovering:
		return nilIfNil(a.WindowCovering)
	case ActionLevelControl:
		return nilIfNil(a.LevelControl)
	case ActionColorControl:
		return nilIfNil(a.ColorControl)
	case ActionHTTPRequest:
		return nilIfNil(a.HTTPRequest)
	case ActionNotification:
		return nilIfNil(a.Notification)
	case ActionSetVariable:
		return nilIfNil(a.SetVariable)
	case ActionRoomTemperature:
		return nilIfNil(a.RoomTemperature)
	default:
		return nil
	}
}

// nilIfNil turns a typed nil pointer into an untyped nil.
func nilIfNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return p
}

// MarshalJSON writes the action in its stored form.
func (a Action) MarshalJSON() ([]byte, error) {
	p := a.payload()
	if p == nil {
		return nil, fmt.Errorf("%w: %q action has no payload", ErrInvalidAction, a.Kind)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionJSON{
		DeviceID:         a.DeviceID,
		GroupID:          a.GroupID,
		ExcludeDeviceIDs: a.ExcludeDeviceIDs,
		Cluster:          a.Kind,
		Action:           raw,
	})
}

// UnmarshalJSON reads the stored form, decoding the payload by cluster.
func (a *Action) UnmarshalJSON(data []byte) error {
	var aj actionJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return err
	}
	*a = Action{
		DeviceID:         aj.DeviceID,
		GroupID:          aj.GroupID,
		ExcludeDeviceIDs: aj.ExcludeDeviceIDs,
		Kind:             aj.Cluster,
	}
	if len(aj.Action) == 0 {
		return fmt.Errorf("%w: %q action has no payload", ErrInvalidAction, aj.Cluster)
	}

	var target any
	switch aj.Cluster {
	case ActionOnOff:
		a.OnOff = &OnOffPayload{}
		target = a.OnOff
	case ActionWindowCovering:
		a.WindowCovering = &WindowCoveringPayload{}
		target = a.WindowCovering
	case ActionLevelControl:
		a.LevelControl = &LevelControlPayload{}
		target = a.LevelControl
	case ActionColorControl:
		a.ColorControl = &ColorControlPayload{}
		target = a.ColorControl
	case ActionHTTPRequest:
		a.HTTPRequest = &HTTPRequestPayload{}
		target = a.HTTPRequest
	case ActionNotification:
		a.Notification = &NotificationPayload{}
		target = a.Notification
	case ActionSetVariable:
		a.SetVariable = &SetVariablePayload{}
		target = a.SetVariable
	case ActionRoomTemperature:
		a.RoomTemperature = &RoomTemperaturePayload{}
		target = a.RoomTemperature
	default:
		return fmt.Errorf("%w: unknown cluster %q", ErrInvalidAction, aj.Cluster)
	}
	if err := json.Unmarshal(aj.Action, target); err != nil {
		return fmt.Errorf("%w: %q payload: %w", ErrInvalidAction, aj.Cluster, err)
	}
	return nil
}

// TriggerInfo describes why a scene ran. A nil *TriggerInfo means a manual
// run.
type TriggerInfo struct {
	Type   TriggerType `json:"type"`
	Source string      `json:"source,omitempty"`
}

// Execution is one entry of the scene audit log. The title is a snapshot
// taken when the scene ran.
type Execution struct {
	ID            string      `json:"id"`
	SceneID       string      `json:"sceneId"`
	SceneTitle    string      `json:"sceneTitle"`
	Timestamp     time.Time   `json:"timestamp"`
	TriggerType   TriggerType `json:"triggerType"`
	TriggerSource string      `json:"triggerSource,omitempty"`
	Success       bool        `json:"success"`
}

// DeepCopy returns a copy of the scene sharing no slices, maps or pointers
// with s.
func (s *Scene) DeepCopy() *Scene {
	if s == nil {
		return nil
	}
	cpy := *s

	if s.Actions != nil {
		cpy.Actions = make([]Action, len(s.Actions))
		for i, a := range s.Actions {
			cpy.Actions[i] = a.deepCopy()
		}
	}
	if s.Triggers != nil {
		cpy.Triggers = make([]TriggerEntry, len(s.Triggers))
		for i, te := range s.Triggers {
			cpy.Triggers[i] = TriggerEntry{Trigger: te.Trigger.deepCopy()}
			if te.Conditions != nil {
				cpy.Triggers[i].Conditions = make([]Condition, len(te.Conditions))
				for j, c := range te.Conditions {
					cpy.Triggers[i].Conditions[j] = c.deepCopy()
				}
			}
		}
	}
	return &cpy
}

func (t Trigger) deepCopy() Trigger {
	t.Occupied = clonePtr(t.Occupied)
	t.ButtonIndex = clonePtr(t.ButtonIndex)
	t.EnteredRange = clonePtr(t.EnteredRange)
	t.ThresholdWatts = clonePtr(t.ThresholdWatts)
	return t
}

func (c Condition) deepCopy() Condition {
	if c.Windows != nil {
		w := make(map[string]TimeWindow, len(c.Windows))
		for k, v := range c.Windows {
			w[k] = v
		}
		c.Windows = w
	}
	return c
}

func (a Action) deepCopy() Action {
	if a.ExcludeDeviceIDs != nil {
		a.ExcludeDeviceIDs = append([]string(nil), a.ExcludeDeviceIDs...)
	}
	a.OnOff = clonePtr(a.OnOff)
	a.WindowCovering = clonePtr(a.WindowCovering)
	a.LevelControl = clonePtr(a.LevelControl)
	a.ColorControl = clonePtr(a.ColorControl)
	a.Notification = clonePtr(a.Notification)
	a.SetVariable = clonePtr(a.SetVariable)
	a.RoomTemperature = clonePtr(a.RoomTemperature)
	if a.HTTPRequest != nil {
		h := *a.HTTPRequest
		h.Body = deepCopyMap(a.HTTPRequest.Body)
		if a.HTTPRequest.Headers != nil {
			h.Headers = make(map[string]string, len(a.HTTPRequest.Headers))
			for k, v := range a.HTTPRequest.Headers {
				h.Headers[k] = v
			}
		}
		a.HTTPRequest = &h
	}
	return a
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v // Primitives are immutable
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// GenerateSceneID returns "scene_<unix ms>_<7 base36 chars>".
func GenerateSceneID(now time.Time) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	var suffix [7]byte
	for i := range suffix {
		suffix[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return "scene_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + string(suffix[:])
}

// GenerateID returns a new UUID for execution records.
func GenerateID() string {
	return uuid.NewString()
}
