package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// maxResponseDrain caps how much of an http-request response body is read
// before the connection is released.
const maxResponseDrain = 64 << 10

// executeActions runs every action of the scene concurrently and ANDs the
// results.
func (e *Engine) executeActions(ctx context.Context, scene *Scene) bool {
	results := make([]bool, len(scene.Actions))

	var wg sync.WaitGroup
	for i, action := range scene.Actions {
		wg.Add(1)
		go func(idx int, a Action) {
			defer wg.Done()
			results[idx] = e.executeAction(ctx, scene.ID, a)
		}(i, action)
	}
	wg.Wait()

	return !slices.Contains(results, false)
}

// executeAction runs one action. Failures are logged and reported as false.
func (e *Engine) executeAction(ctx context.Context, sceneID string, a Action) bool {
	switch a.Kind {
	case ActionOnOff, ActionWindowCovering, ActionLevelControl, ActionColorControl:
		return e.executeDeviceAction(ctx, sceneID, a)

	case ActionHTTPRequest:
		if err := e.doHTTPRequest(ctx, a.HTTPRequest); err != nil {
			e.logger.Error("http-request action failed", "scene_id", sceneID, "url", a.HTTPRequest.URL, "error", err)
			return false
		}
		return true

	case ActionNotification:
		if e.notifier == nil {
			e.logger.Warn("notification action without notifier", "scene_id", sceneID)
			return false
		}
		if err := e.notifier.Send(ctx, a.Notification.Title, a.Notification.Message); err != nil {
			e.logger.Error("sending notification", "scene_id", sceneID, "error", err)
			return false
		}
		return true

	case ActionSetVariable:
		if e.variables == nil {
			e.logger.Warn("set-variable action without variable store", "scene_id", sceneID)
			return false
		}
		if err := e.variables.Set(a.SetVariable.VariableName, a.SetVariable.VariableValue); err != nil {
			e.logger.Error("setting variable", "scene_id", sceneID, "variable", a.SetVariable.VariableName, "error", err)
			return false
		}
		return true

	case ActionRoomTemperature:
		if e.rooms == nil {
			e.logger.Warn("room-temperature action without room controller", "scene_id", sceneID)
			return false
		}
		rt := a.RoomTemperature
		if err := e.rooms.SetRoomTarget(ctx, rt.RoomName, rt.TargetTemperature); err != nil {
			e.logger.Error("setting room temperature", "scene_id", sceneID, "room", rt.RoomName, "error", err)
			return false
		}
		return true

	default:
		cluster.Unreachable(a.Kind)
		return false
	}
}

// executeDeviceAction applies a cluster action to its device or group.
// A single device must accept the action on every matching cluster; a
// group succeeds if at least one member does.
func (e *Engine) executeDeviceAction(ctx context.Context, sceneID string, a Action) bool {
	devs, ok := e.resolveTargets(sceneID, a)
	if !ok {
		return false
	}

	if a.Kind == ActionColorControl && a.ColorControl.PaletteID != "" {
		return e.applyPalette(ctx, sceneID, a, devs)
	}

	results := make([]bool, len(devs))
	var wg sync.WaitGroup
	for i, d := range devs {
		wg.Add(1)
		go func(idx int, d *device.Device) {
			defer wg.Done()
			results[idx] = e.applyToDevice(ctx, d, a)
		}(i, d)
	}
	wg.Wait()

	if a.GroupID != "" {
		return slices.Contains(results, true)
	}
	return !slices.Contains(results, false)
}

// resolveTargets returns the live devices an action addresses. Group
// members that are excluded or not currently present are skipped.
func (e *Engine) resolveTargets(sceneID string, a Action) ([]*device.Device, bool) {
	switch {
	case a.DeviceID != "":
		d, ok := e.devices.Get(a.DeviceID)
		if !ok {
			e.logger.Warn("action device not found", "scene_id", sceneID, "device_id", a.DeviceID)
			return nil, false
		}
		return []*device.Device{d}, true

	case a.GroupID != "":
		if e.groups == nil {
			e.logger.Warn("group action without group store", "scene_id", sceneID, "group_id", a.GroupID)
			return nil, false
		}
		grp, ok := e.groups.Get(a.GroupID)
		if !ok {
			e.logger.Warn("action group not found", "scene_id", sceneID, "group_id", a.GroupID)
			return nil, false
		}
		var devs []*device.Device
		for _, id := range grp.DeviceIDs {
			if slices.Contains(a.ExcludeDeviceIDs, id) {
				continue
			}
			if d, ok := e.devices.Get(id); ok {
				devs = append(devs, d)
			}
		}
		return devs, true

	default:
		e.logger.Warn("action has neither deviceId nor groupId", "scene_id", sceneID, "cluster", a.Kind)
		return nil, false
	}
}

func (e *Engine) applyPalette(ctx context.Context, sceneID string, a Action, devs []*device.Device) bool {
	if a.GroupID == "" {
		e.logger.Warn("palette action used without group", "scene_id", sceneID)
		return false
	}
	if e.palettes == nil {
		e.logger.Warn("palette action without palette store", "scene_id", sceneID)
		return false
	}
	pal, ok := e.palettes.Get(a.ColorControl.PaletteID)
	if !ok {
		e.logger.Warn("palette not found", "scene_id", sceneID, "palette_id", a.ColorControl.PaletteID)
		return false
	}
	return e.palettes.Apply(ctx, devs, pal)
}

// applyToDevice sends the action to every matching cluster on d.
func (e *Engine) applyToDevice(ctx context.Context, d *device.Device, a Action) bool { //nolint:gocyclo // one arm per cluster action
	fail := func(msg string, err error) bool {
		if err != nil {
			e.logger.Error(msg, "device_id", d.ID(), "cluster", a.Kind, "error", err)
		} else {
			e.logger.Warn(msg, "device_id", d.ID(), "cluster", a.Kind)
		}
		return false
	}

	switch a.Kind {
	case ActionOnOff:
		cls := device.AllClustersOf[cluster.OnOff](d, cluster.NameOnOff)
		if len(cls) == 0 {
			return fail("device has no OnOff", nil)
		}
		for _, c := range cls {
			if err := c.SetOn(ctx, a.OnOff.IsOn); err != nil {
				return fail("device control error", err)
			}
		}

	case ActionWindowCovering:
		cls := device.AllClustersOf[cluster.WindowCovering](d, cluster.NameWindowCovering)
		if len(cls) == 0 {
			return fail("device has no WindowCovering", nil)
		}
		for _, c := range cls {
			if err := c.GoToLiftPercentage(ctx, a.WindowCovering.TargetPositionLiftPercentage); err != nil {
				return fail("device control error", err)
			}
		}

	case ActionColorControl:
		cls := device.AllClustersOf[cluster.ColorControlXY](d, cluster.NameColorControl)
		if len(cls) == 0 {
			return fail("device has no full-colour ColorControl", nil)
		}
		cc := a.ColorControl
		color := cluster.FromUserHSV(cluster.HSV{Hue: cc.Hue, Saturation: cc.Saturation, Value: cc.Value})
		for _, c := range cls {
			if err := c.SetColor(ctx, []cluster.Color{color}, 0); err != nil {
				return fail("device control error", err)
			}
		}

	case ActionLevelControl:
		lc := a.LevelControl
		level := lc.Level / 100
		if lc.DurationSeconds > 0 {
			return e.ramps.Start(ctx, d, level, time.Duration(lc.DurationSeconds*float64(time.Second)))
		}
		cls := device.AllClustersOf[cluster.LevelControl](d, cluster.NameLevelControl)
		if len(cls) == 0 {
			return fail("device has no LevelControl", nil)
		}
		e.ramps.Stop(d.ID())
		for _, c := range cls {
			if err := c.SetLevel(ctx, level, 0); err != nil {
				return fail("device control error", err)
			}
		}

	default:
		cluster.Unreachable(a.Kind)
	}
	return true
}

// doHTTPRequest performs an http-request action. The body is only sent on
// POST; any non-2xx status is an error.
func (e *Engine) doHTTPRequest(ctx context.Context, p *HTTPRequestPayload) error {
	var body io.Reader
	if p.Method == http.MethodPost && p.Body != nil {
		raw, err := json.Marshal(p.Body)
		if err != nil {
			return fmt.Errorf("encoding body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseDrain))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrHTTPStatus, resp.Status)
	}
	e.logger.Debug("http-request action succeeded", "url", p.URL, "status", resp.StatusCode)
	return nil
}
