package tracker

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// History kinds served by Set.History.
const (
	KindOccupancy    = "occupancy"
	KindButton       = "button"
	KindBooleanState = "boolean-state"
	KindPower        = "power"
	KindTemperature  = "temperature"
	KindHumidity     = "humidity"
	KindIlluminance  = "illuminance"
	KindCO2          = "co2"
	KindFridge       = "fridge"
	KindWasher       = "washer"
)

// Kinds lists every history kind.
func Kinds() []string {
	return []string{
		KindOccupancy, KindButton, KindBooleanState, KindPower, KindTemperature,
		KindHumidity, KindIlluminance, KindCO2, KindFridge, KindWasher,
	}
}

// Set owns one tracker of every kind plus the scheduler.
type Set struct {
	Occupancy      *OccupancyTracker
	Switch         *SwitchTracker
	BooleanState   *BooleanStateTracker
	Power          *NumericTracker
	Temperature    *NumericTracker
	Humidity       *NumericTracker
	Illuminance    *NumericTracker
	CO2            *CO2Tracker
	Fridge         *ApplianceTracker[FridgeRecord]
	Washer         *ApplianceTracker[WasherRecord]
	PowerThreshold *PowerThresholdTracker
	Scheduler      *Scheduler

	logger Logger
}

// NewSet creates every tracker. Device triggers go to opts.Sink; scheduled
// triggers go to runner.
//
// Parameters:
//   - scenes: Scene definitions, read for power thresholds and schedules
//   - runner: Runs scheduled trigger entries
//   - opts: Shared collaborators and scheduler settings
func NewSet(scenes SceneLister, runner EntryRunner, opts SchedulerOptions) (*Set, error) {
	s := &Set{logger: opts.Options.withDefaults().Logger}
	var err error

	if s.Occupancy, err = NewOccupancyTracker(opts.Options); err != nil {
		return nil, err
	}
	if s.Switch, err = NewSwitchTracker(opts.Options); err != nil {
		return nil, err
	}
	if s.BooleanState, err = NewBooleanStateTracker(opts.Options); err != nil {
		return nil, err
	}
	if s.Power, err = NewPowerTracker(opts.Options); err != nil {
		return nil, err
	}
	if s.Temperature, err = NewTemperatureTracker(opts.Options); err != nil {
		return nil, err
	}
	if s.Humidity, err = NewHumidityTracker(opts.Options); err != nil {
		return nil, err
	}
	if s.Illuminance, err = NewIlluminanceTracker(opts.Options); err != nil {
		return nil, err
	}
	if s.CO2, err = NewCO2Tracker(opts.Options); err != nil {
		return nil, err
	}
	if s.Fridge, err = NewFridgeTracker(opts.Options); err != nil {
		return nil, err
	}
	if s.Washer, err = NewWasherTracker(opts.Options); err != nil {
		return nil, err
	}
	s.PowerThreshold = NewPowerThresholdTracker(scenes, opts.Options)
	if s.Scheduler, err = NewScheduler(scenes, runner, opts); err != nil {
		return nil, err
	}
	return s, nil
}

// TrackDevices hands devs to every tracker.
func (s *Set) TrackDevices(devs []*device.Device) {
	s.Occupancy.TrackDevices(devs)
	s.Switch.TrackDevices(devs)
	s.BooleanState.TrackDevices(devs)
	s.Power.TrackDevices(devs)
	s.Temperature.TrackDevices(devs)
	s.Humidity.TrackDevices(devs)
	s.Illuminance.TrackDevices(devs)
	s.CO2.TrackDevices(devs)
	s.Fridge.TrackDevices(devs)
	s.Washer.TrackDevices(devs)
	s.PowerThreshold.TrackDevices(devs)
}

// Watch tracks every device the registry holds now or later.
//
// Returns:
//   - func(): Stops watching
func (s *Set) Watch(devices reactive.Cell[map[string]*device.Device]) func() {
	return devices.Subscribe(func(all map[string]*device.Device, _ bool) {
		ids := make([]string, 0, len(all))
		for id := range all {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		devs := make([]*device.Device, 0, len(ids))
		for _, id := range ids {
			devs = append(devs, all[id])
		}
		s.TrackDevices(devs)
	})
}

// Run drives the snapshot loops and the scheduler until ctx is done.
func (s *Set) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Power.Run(ctx) })
	g.Go(func() error { return s.Temperature.Run(ctx) })
	g.Go(func() error { return s.Humidity.Run(ctx) })
	g.Go(func() error { return s.Illuminance.Run(ctx) })
	g.Go(func() error { return s.CO2.Run(ctx) })
	g.Go(func() error { return s.Fridge.Run(ctx) })
	g.Go(func() error { return s.Washer.Run(ctx) })
	g.Go(func() error { return s.Scheduler.Run(ctx) })
	s.logger.Info("trackers started")
	return g.Wait()
}

// History returns the device's history of kind as a JSON-ready slice.
func (s *Set) History(ctx context.Context, kind, deviceID string, q HistoryQuery) (any, error) {
	switch kind {
	case KindOccupancy:
		return s.Occupancy.History(ctx, deviceID, q)
	case KindButton:
		return s.Switch.History(ctx, deviceID, nil, q)
	case KindBooleanState:
		return s.BooleanState.History(ctx, deviceID, q)
	case KindPower:
		return s.Power.History(ctx, deviceID, q)
	case KindTemperature:
		return s.Temperature.History(ctx, deviceID, q)
	case KindHumidity:
		return s.Humidity.History(ctx, deviceID, q)
	case KindIlluminance:
		return s.Illuminance.History(ctx, deviceID, q)
	case KindCO2:
		return s.CO2.History(ctx, deviceID, q)
	case KindFridge:
		return s.Fridge.History(ctx, deviceID, q)
	case KindWasher:
		return s.Washer.History(ctx, deviceID, q)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Close stops every tracker.
func (s *Set) Close() {
	s.Occupancy.Close()
	s.Switch.Close()
	s.BooleanState.Close()
	s.Power.Close()
	s.Temperature.Close()
	s.Humidity.Close()
	s.Illuminance.Close()
	s.CO2.Close()
	s.Fridge.Close()
	s.Washer.Close()
	s.PowerThreshold.Close()
}
