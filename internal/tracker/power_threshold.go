package tracker

import (
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// powerHysteresis is the band, in watts, a reading must clear on the far
// side of a threshold before the above/below state flips.
const powerHysteresis = 1.0

// threshold is one power-threshold trigger declared by a scene.
type threshold struct {
	watts     float64
	direction automation.Direction
}

func (th threshold) key(deviceID string) string {
	return fmt.Sprintf("%s:%g:%s", deviceID, th.watts, th.direction)
}

// PowerThresholdTracker watches active power against the thresholds
// declared by scenes' power-threshold triggers and fires a trigger when a
// reading crosses one in the declared direction.
//
// Each threshold keeps an above/below state. The first reading only sets
// the state. Afterwards the state flips to above at threshold+1 W and back
// to below under threshold-1 W, so a load hovering at the boundary does
// not toggle.
type PowerThresholdTracker struct {
	scenes   SceneLister
	opts     Options
	subs     *subscriptions
	dispatch *dispatcher

	mu         sync.Mutex
	thresholds map[string][]threshold
	above      map[string]bool
}

// NewPowerThresholdTracker creates the tracker and loads the current
// thresholds from scenes.
func NewPowerThresholdTracker(scenes SceneLister, opts Options) *PowerThresholdTracker {
	opts = opts.withDefaults()
	t := &PowerThresholdTracker{
		scenes:     scenes,
		opts:       opts,
		subs:       newSubscriptions(),
		dispatch:   newDispatcher(opts.Sink, opts.Logger),
		thresholds: make(map[string][]threshold),
		above:      make(map[string]bool),
	}
	t.RefreshThresholds()
	return t
}

// RefreshThresholds reloads the thresholds from the scene list. State of
// thresholds that still exist is kept; state of removed ones is dropped.
func (t *PowerThresholdTracker) RefreshThresholds() {
	next := make(map[string][]threshold)
	keys := make(map[string]bool)
	if t.scenes != nil {
		for _, scene := range t.scenes.ListScenes() {
			for _, entry := range scene.Triggers {
				trig := entry.Trigger
				if trig.Type != automation.TriggerPowerThreshold || trig.ThresholdWatts == nil {
					continue
				}
				th := threshold{watts: *trig.ThresholdWatts, direction: trig.Direction}
				k := th.key(trig.DeviceID)
				if keys[k] {
					continue
				}
				keys[k] = true
				next[trig.DeviceID] = append(next[trig.DeviceID], th)
			}
		}
	}

	t.mu.Lock()
	t.thresholds = next
	for k := range t.above {
		if !keys[k] {
			delete(t.above, k)
		}
	}
	t.mu.Unlock()
	t.opts.Logger.Debug("power thresholds refreshed", "count", len(keys))
}

// TrackDevices subscribes to the active power of every metering device in
// devs. Readings of devices without thresholds are ignored.
func (t *PowerThresholdTracker) TrackDevices(devs []*device.Device) {
	for _, d := range devs {
		t.subs.track(d, t.attach)
	}
}

func (t *PowerThresholdTracker) attach(d *device.Device) []func() {
	meter, ok := device.ClusterOf[cluster.ElectricalPower](d, cluster.NameElectricalPower)
	if !ok {
		return nil
	}
	id, cell := d.ID(), meter.ActivePower()
	return []func(){cell.Subscribe(func(_ float64, _ bool) {
		if watts, ok := cell.Lookup(); ok {
			t.Evaluate(id, watts)
		}
	})}
}

// Evaluate applies one power reading of deviceID to its thresholds.
func (t *PowerThresholdTracker) Evaluate(deviceID string, watts float64) {
	var fire []threshold

	t.mu.Lock()
	for _, th := range t.thresholds[deviceID] {
		k := th.key(deviceID)
		prev, known := t.above[k]

		var now bool
		switch {
		case !known:
			now = watts >= th.watts
		case prev:
			now = watts >= th.watts-powerHysteresis
		default:
			now = watts >= th.watts+powerHysteresis
		}
		t.above[k] = now

		if known && now != prev && now == (th.direction == automation.DirectionAbove) {
			fire = append(fire, th)
		}
	}
	t.mu.Unlock()

	for _, th := range fire {
		t.opts.Logger.Info("power threshold crossed",
			"device_id", deviceID, "threshold_watts", th.watts, "direction", th.direction, "watts", watts)
		limit := th.watts
		t.dispatch.send(automation.Trigger{
			Type:           automation.TriggerPowerThreshold,
			DeviceID:       deviceID,
			ThresholdWatts: &limit,
			Direction:      th.direction,
		})
	}
}

// Close drops every subscription and stops trigger dispatch.
func (t *PowerThresholdTracker) Close() {
	t.subs.close()
	t.dispatch.close()
}
