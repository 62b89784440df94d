package automation

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// deviceReadTimeout bounds the fresh read behind a device-on condition.
const deviceReadTimeout = 5 * time.Second

// evaluateConditions ANDs conds, stopping at the first failure. In manual
// mode only conditions flagged CheckOnManual are evaluated; the rest pass.
func (e *Engine) evaluateConditions(ctx context.Context, conds []Condition, manual bool) bool {
	for _, c := range conds {
		if manual && !c.CheckOnManual {
			continue
		}
		if !e.evaluateCondition(ctx, c) {
			e.logger.Debug("condition failed", "type", c.Type, "manual", manual)
			return false
		}
	}
	return true
}

// evaluateCondition checks one condition. Missing devices, hosts or
// capabilities fail closed with a warning.
func (e *Engine) evaluateCondition(ctx context.Context, c Condition) bool { //nolint:gocyclo // one arm per condition type
	switch c.Type {
	case ConditionHostHome:
		if e.presence == nil {
			e.logger.Warn("host-home condition without presence source", "host_id", c.HostID)
			return false
		}
		home, known := e.presence.HostHome(c.HostID)
		if !known {
			e.logger.Warn("host presence unknown", "host_id", c.HostID)
			return false
		}
		return home == c.ShouldBeHome

	case ConditionAnyoneHome:
		if e.presence == nil {
			e.logger.Warn("anyone-home condition without presence source")
			return false
		}
		home, known := e.presence.AnyoneHome()
		if !known {
			e.logger.Warn("household presence unknown")
			return false
		}
		return home == c.ShouldBeHome

	case ConditionDeviceOn:
		return e.checkDeviceOn(ctx, c)

	case ConditionTimeWindow:
		return e.checkTimeWindow(c)

	case ConditionCustomCode:
		env := codeEnv{now: e.now()}
		if e.variables != nil {
			env.variables = e.variables.All()
		}
		ok, err := evalCode(ctx, c.Code, env, e.codeTimeout)
		if err != nil {
			e.logger.Warn("custom-code condition failed", "error", err)
			return false
		}
		return ok

	case ConditionVariable:
		var val bool
		if e.variables != nil {
			val = e.variables.Get(c.VariableName)
		}
		result := val == c.ShouldBeTrue
		if c.Invert {
			result = !result
		}
		return result

	case ConditionDelay:
		return sleepCtx(ctx, time.Duration(c.Seconds)*time.Second)

	default:
		cluster.Unreachable(c.Type)
		return false
	}
}

// checkDeviceOn forces a fresh read of the device's OnOff state.
func (e *Engine) checkDeviceOn(ctx context.Context, c Condition) bool {
	dev, ok := e.devices.Get(c.DeviceID)
	if !ok {
		e.logger.Warn("device-on condition: device not found", "device_id", c.DeviceID)
		return false
	}
	onOff, ok := device.ClusterOf[cluster.OnOff](dev, cluster.NameOnOff)
	if !ok {
		e.logger.Warn("device-on condition: device has no OnOff", "device_id", c.DeviceID)
		return false
	}

	readCtx, cancel := context.WithTimeout(ctx, deviceReadTimeout)
	defer cancel()
	isOn, err := onOff.IsOn().Get(readCtx)
	if err != nil {
		e.logger.Warn("device-on condition: reading state", "device_id", c.DeviceID, "error", err)
		return false
	}
	return isOn == c.ShouldBeOn
}

// checkTimeWindow passes when today has no window, or the current time is
// inside it. A window whose start is after its end spans midnight.
func (e *Engine) checkTimeWindow(c Condition) bool {
	now := e.now()
	w, ok := c.Windows[weekdayKeys[now.Weekday()]]
	if !ok {
		return true
	}

	start, err1 := minutesOfDay(w.Start)
	end, err2 := minutesOfDay(w.End)
	if err1 != nil || err2 != nil {
		e.logger.Warn("time-window condition: bad window", "start", w.Start, "end", w.End)
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur <= end
	}
	return cur >= start || cur <= end
}

func minutesOfDay(hhmm string) (int, error) {
	t, err := time.Parse(timeWindowLayout, hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// sleepCtx waits for d or until ctx is done. Returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
