package automation

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/gopher-lua/parse"
)

// Validation constants.
const (
	maxTitleLength      = 100
	maxActions          = 100
	maxTriggers         = 50
	maxConditions       = 20
	maxDelaySeconds     = 3600
	maxRampSeconds      = 3600
	maxCodeLength       = 10000
	maxVariableLength   = 64
	maxTargetCelsius    = 40
	timeWindowLayout    = "15:04"
	variableNamePattern = `^[A-Za-z0-9_.-]+$`
)

var variableNameRegex = regexp.MustCompile(variableNamePattern)

// Pre-computed validation sets for O(1) lookups.
var (
	validTriggerTypes   = make(map[TriggerType]struct{})
	validConditionTypes = make(map[ConditionType]struct{})
	validWeekdays       = make(map[string]struct{})
)

func init() {
	for _, t := range AllTriggerTypes() {
		validTriggerTypes[t] = struct{}{}
	}
	for _, c := range AllConditionTypes() {
		validConditionTypes[c] = struct{}{}
	}
	for _, d := range weekdayKeys {
		validWeekdays[d] = struct{}{}
	}
}

// ValidateScene performs comprehensive validation on a scene.
// Returns an error describing the first validation failure found.
func ValidateScene(s *Scene) error {
	if s == nil {
		return ErrInvalidScene
	}

	if err := ValidateTitle(s.Title); err != nil {
		return err
	}

	if len(s.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrInvalidScene)
	}
	if len(s.Actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrInvalidAction, maxActions)
	}
	for i, action := range s.Actions {
		if err := ValidateAction(action); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
	}

	if len(s.Triggers) > maxTriggers {
		return fmt.Errorf("%w: exceeds maximum of %d triggers", ErrInvalidTrigger, maxTriggers)
	}
	for i, entry := range s.Triggers {
		if err := ValidateTrigger(entry.Trigger); err != nil {
			return fmt.Errorf("trigger[%d]: %w", i, err)
		}
		if len(entry.Conditions) > maxConditions {
			return fmt.Errorf("trigger[%d]: %w: exceeds maximum of %d conditions", i, ErrInvalidCondition, maxConditions)
		}
		for j, cond := range entry.Conditions {
			if err := ValidateCondition(cond); err != nil {
				return fmt.Errorf("trigger[%d].condition[%d]: %w", i, j, err)
			}
		}
	}

	return nil
}

// ValidateTitle checks if a scene title is valid.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalidTitle)
	}
	if len(title) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidTitle, maxTitleLength)
	}
	return nil
}

// ValidateVariableName checks a variable name used by conditions and
// set-variable actions.
func ValidateVariableName(name string) error {
	if name == "" || len(name) > maxVariableLength || !variableNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidVariable, name)
	}
	return nil
}

// ValidateTrigger checks a scene trigger's type and required fields.
func ValidateTrigger(t Trigger) error { //nolint:gocyclo // one arm per trigger type
	if _, ok := validTriggerTypes[t.Type]; !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTrigger, t.Type)
	}

	switch t.Type {
	case TriggerOccupancy:
		return requireField(ErrInvalidTrigger, "deviceId", t.DeviceID)
	case TriggerButtonPress:
		if err := requireField(ErrInvalidTrigger, "deviceId", t.DeviceID); err != nil {
			return err
		}
		if t.ButtonIndex == nil || *t.ButtonIndex < 0 {
			return fmt.Errorf("%w: buttonIndex must be 0 or more", ErrInvalidTrigger)
		}
	case TriggerHostArrival, TriggerHostDeparture:
		return requireField(ErrInvalidTrigger, "hostId", t.HostID)
	case TriggerWebhook:
		if err := requireField(ErrInvalidTrigger, "webhookName", t.WebhookName); err != nil {
			return err
		}
		if !variableNameRegex.MatchString(t.WebhookName) {
			return fmt.Errorf("%w: webhookName %q may only contain letters, digits, '.', '_' and '-'", ErrInvalidTrigger, t.WebhookName)
		}
	case TriggerCron:
		if t.IntervalMinutes < 1 {
			return fmt.Errorf("%w: intervalMinutes must be at least 1", ErrInvalidTrigger)
		}
	case TriggerLocationWithinRange:
		if err := requireField(ErrInvalidTrigger, "deviceId", t.DeviceID); err != nil {
			return err
		}
		if err := requireField(ErrInvalidTrigger, "targetId", t.TargetID); err != nil {
			return err
		}
		if !(t.RangeKm > 0) || math.IsInf(t.RangeKm, 0) {
			return fmt.Errorf("%w: rangeKm must be positive", ErrInvalidTrigger)
		}
		if t.EnteredRange == nil {
			return fmt.Errorf("%w: enteredRange is required", ErrInvalidTrigger)
		}
	case TriggerPowerThreshold:
		if err := requireField(ErrInvalidTrigger, "deviceId", t.DeviceID); err != nil {
			return err
		}
		if t.ThresholdWatts == nil || !(*t.ThresholdWatts >= 0) || math.IsInf(*t.ThresholdWatts, 0) {
			return fmt.Errorf("%w: thresholdWatts must be 0 or more", ErrInvalidTrigger)
		}
		if t.Direction != DirectionAbove && t.Direction != DirectionBelow {
			return fmt.Errorf("%w: direction must be %q or %q", ErrInvalidTrigger, DirectionAbove, DirectionBelow)
		}
	case TriggerAnybodyHome, TriggerNobodyHome, TriggerNobodyHomeTimeout:
	}
	return nil
}

// ValidateCondition checks a condition's type and required fields.
// Custom code is parsed so syntax errors surface when the scene is saved.
func ValidateCondition(c Condition) error {
	if _, ok := validConditionTypes[c.Type]; !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCondition, c.Type)
	}

	switch c.Type {
	case ConditionHostHome:
		return requireField(ErrInvalidCondition, "hostId", c.HostID)
	case ConditionDeviceOn:
		return requireField(ErrInvalidCondition, "deviceId", c.DeviceID)
	case ConditionTimeWindow:
		for day, w := range c.Windows {
			if _, ok := validWeekdays[day]; !ok {
				return fmt.Errorf("%w: unknown weekday %q", ErrInvalidCondition, day)
			}
			if _, err := time.Parse(timeWindowLayout, w.Start); err != nil {
				return fmt.Errorf("%w: %s start %q is not HH:MM", ErrInvalidCondition, day, w.Start)
			}
			if _, err := time.Parse(timeWindowLayout, w.End); err != nil {
				return fmt.Errorf("%w: %s end %q is not HH:MM", ErrInvalidCondition, day, w.End)
			}
		}
	case ConditionCustomCode:
		if strings.TrimSpace(c.Code) == "" {
			return fmt.Errorf("%w: code is required", ErrInvalidCondition)
		}
		if len(c.Code) > maxCodeLength {
			return fmt.Errorf("%w: code exceeds %d characters", ErrInvalidCondition, maxCodeLength)
		}
		if _, err := parse.Parse(strings.NewReader(c.Code), "condition"); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCondition, err)
		}
	case ConditionVariable:
		if err := ValidateVariableName(c.VariableName); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCondition, err)
		}
	case ConditionDelay:
		if c.Seconds < 0 || c.Seconds > maxDelaySeconds {
			return fmt.Errorf("%w: seconds must be 0-%d", ErrInvalidCondition, maxDelaySeconds)
		}
	case ConditionAnyoneHome:
	}
	return nil
}

// ValidateAction checks if a scene action is valid.
func ValidateAction(a Action) error { //nolint:gocyclo // one arm per action kind
	if a.payload() == nil {
		return fmt.Errorf("%w: %q action has no payload", ErrInvalidAction, a.Kind)
	}

	if a.Kind.targetsDevices() {
		if (a.DeviceID == "") == (a.GroupID == "") {
			return fmt.Errorf("%w: exactly one of deviceId or groupId is required", ErrInvalidAction)
		}
		if a.DeviceID != "" && len(a.ExcludeDeviceIDs) > 0 {
			return fmt.Errorf("%w: excludeDeviceIds only applies to group actions", ErrInvalidAction)
		}
	}

	switch a.Kind {
	case ActionOnOff:
	case ActionWindowCovering:
		if err := checkRange("targetPositionLiftPercentage", a.WindowCovering.TargetPositionLiftPercentage, 0, 100); err != nil {
			return err
		}
	case ActionLevelControl:
		if err := checkRange("level", a.LevelControl.Level, 0, 100); err != nil {
			return err
		}
		if err := checkRange("durationSeconds", a.LevelControl.DurationSeconds, 0, maxRampSeconds); err != nil {
			return err
		}
	case ActionColorControl:
		cc := a.ColorControl
		if cc.PaletteID != "" {
			if a.GroupID == "" {
				return fmt.Errorf("%w: palettes can only be applied to groups", ErrInvalidAction)
			}
			return nil
		}
		if err := checkRange("hue", cc.Hue, 0, 360); err != nil {
			return err
		}
		if err := checkRange("saturation", cc.Saturation, 0, 100); err != nil {
			return err
		}
		if err := checkRange("value", cc.Value, 0, 100); err != nil {
			return err
		}
	case ActionHTTPRequest:
		u, err := url.Parse(a.HTTPRequest.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidAction)
		}
		if a.HTTPRequest.Method != "GET" && a.HTTPRequest.Method != "POST" {
			return fmt.Errorf("%w: method must be GET or POST", ErrInvalidAction)
		}
	case ActionNotification:
		return requireField(ErrInvalidAction, "title", a.Notification.Title)
	case ActionSetVariable:
		if err := ValidateVariableName(a.SetVariable.VariableName); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAction, err)
		}
	case ActionRoomTemperature:
		if err := requireField(ErrInvalidAction, "roomName", a.RoomTemperature.RoomName); err != nil {
			return err
		}
		if err := checkRange("targetTemperature", a.RoomTemperature.TargetTemperature, 0, maxTargetCelsius); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown cluster %q", ErrInvalidAction, a.Kind)
	}
	return nil
}

func requireField(kind error, name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", kind, name)
	}
	return nil
}

func checkRange(name string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return fmt.Errorf("%w: %s must be %g-%g", ErrInvalidAction, name, lo, hi)
	}
	return nil
}
