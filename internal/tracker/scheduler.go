package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
)

// defaultCheckInterval is how often the scheduler re-evaluates interval and
// location triggers.
const defaultCheckInterval = 10 * time.Second

// EntryRunner runs one trigger entry of one scene. The scene engine
// implements it.
type EntryRunner interface {
	RunEntry(ctx context.Context, sceneID string, index int) bool
}

// LocationSource answers whether a device is within range of a named
// target.
type LocationSource interface {
	WithinRange(deviceID, targetID string, rangeKm float64) (bool, error)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Options

	// Locations resolves location-within-range triggers. Without it those
	// triggers never fire.
	Locations LocationSource

	// CheckInterval is the polling period (default 10s).
	CheckInterval time.Duration
}

// Scheduler fires interval ("cron") and location-within-range triggers,
// which have no device event to react to.
//
// Interval triggers fire when they have never run or when at least their
// interval has passed since the last run recorded in cron_executions. This
// includes the first check after startup, so intervals missed while the
// hub was down fire once.
//
// Location triggers fire when the device moves from outside to inside the
// range and the trigger has enteredRange set. The state observed on the
// first check of a trigger never fires.
type Scheduler struct {
	scenes    SceneLister
	runner    EntryRunner
	locations LocationSource
	opts      Options
	interval  time.Duration

	mu      sync.Mutex
	inRange map[string]bool
}

// NewScheduler creates a scheduler. The cron_executions table is created by
// the database migrations.
func NewScheduler(scenes SceneLister, runner EntryRunner, opts SchedulerOptions) (*Scheduler, error) {
	base := opts.Options.withDefaults()
	if base.DB == nil {
		return nil, ErrNoDatabase
	}
	interval := opts.CheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Scheduler{
		scenes:    scenes,
		runner:    runner,
		locations: opts.Locations,
		opts:      base,
		interval:  interval,
		inRange:   make(map[string]bool),
	}, nil
}

// Run seeds location state, fires missed intervals and then checks every
// interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.InitLocations()
	s.Check(ctx)
	s.opts.Logger.Info("interval scheduler started", "check_interval", s.interval)
	return runEvery(ctx, s.interval, s.Check)
}

func locationKey(sceneID string, index int) string {
	return sceneID + ":" + strconv.Itoa(index)
}

// InitLocations records the current in-range state of every location
// trigger. A state that cannot be determined counts as out of range, so
// the trigger fires once the device is seen inside.
func (s *Scheduler) InitLocations() {
	for _, scene := range s.scenes.ListScenes() {
		for i, entry := range scene.Triggers {
			trig := entry.Trigger
			if trig.Type != automation.TriggerLocationWithinRange {
				continue
			}
			inside := false
			if s.locations != nil {
				var err error
				inside, err = s.locations.WithinRange(trig.DeviceID, trig.TargetID, trig.RangeKm)
				if err != nil {
					s.opts.Logger.Warn("location state unknown, assuming out of range",
						"scene_id", scene.ID, "device_id", trig.DeviceID, "error", err)
					inside = false
				}
			}
			s.mu.Lock()
			s.inRange[locationKey(scene.ID, i)] = inside
			s.mu.Unlock()
		}
	}
}

// Check evaluates every interval and location trigger once.
func (s *Scheduler) Check(ctx context.Context) {
	for _, scene := range s.scenes.ListScenes() {
		for i, entry := range scene.Triggers {
			if ctx.Err() != nil {
				return
			}
			switch entry.Trigger.Type {
			case automation.TriggerCron:
				s.checkInterval(ctx, scene, i, entry.Trigger)
			case automation.TriggerLocationWithinRange:
				s.checkLocation(ctx, scene, i, entry.Trigger)
			}
		}
	}
}

func (s *Scheduler) checkInterval(ctx context.Context, scene automation.Scene, index int, trig automation.Trigger) {
	now := s.opts.Now()
	last, ok, err := s.LastExecution(ctx, scene.ID, index)
	if err != nil {
		s.opts.Logger.Error("reading last interval run", "scene_id", scene.ID, "error", err)
		return
	}
	if ok && now.Sub(last) < time.Duration(trig.IntervalMinutes)*time.Minute {
		return
	}

	if ok {
		s.opts.Logger.Info("interval elapsed, triggering scene",
			"scene_id", scene.ID, "interval_minutes", trig.IntervalMinutes)
	} else {
		s.opts.Logger.Info("interval trigger never ran, triggering scene",
			"scene_id", scene.ID, "interval_minutes", trig.IntervalMinutes)
	}
	if s.runner != nil {
		s.runner.RunEntry(ctx, scene.ID, index)
	}
	if err := s.recordExecution(ctx, scene.ID, index, now); err != nil {
		s.opts.Logger.Error("recording interval run", "scene_id", scene.ID, "error", err)
	}
}

func (s *Scheduler) checkLocation(ctx context.Context, scene automation.Scene, index int, trig automation.Trigger) {
	if s.locations == nil {
		return
	}
	inside, err := s.locations.WithinRange(trig.DeviceID, trig.TargetID, trig.RangeKm)
	if err != nil {
		s.opts.Logger.Warn("checking location trigger", "scene_id", scene.ID, "device_id", trig.DeviceID, "error", err)
		return
	}

	key := locationKey(scene.ID, index)
	s.mu.Lock()
	was, known := s.inRange[key]
	s.inRange[key] = inside
	s.mu.Unlock()

	if !known || was || !inside {
		return
	}
	if trig.EnteredRange == nil || !*trig.EnteredRange {
		return
	}

	s.opts.Logger.Info("device entered range",
		"scene_id", scene.ID, "device_id", trig.DeviceID, "target_id", trig.TargetID, "range_km", trig.RangeKm)
	if s.runner != nil {
		s.runner.RunEntry(ctx, scene.ID, index)
	}
	if err := s.recordExecution(ctx, scene.ID, index, s.opts.Now()); err != nil {
		s.opts.Logger.Error("recording location run", "scene_id", scene.ID, "error", err)
	}
}

// LastExecution returns when the trigger entry last fired.
func (s *Scheduler) LastExecution(ctx context.Context, sceneID string, index int) (time.Time, bool, error) {
	var ts int64
	err := s.opts.DB.QueryRowContext(ctx,
		`SELECT last_execution_timestamp FROM cron_executions
		 WHERE scene_id = ? AND trigger_index = ?`, sceneID, index).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying cron execution: %w", err)
	}
	return time.UnixMilli(ts), true, nil
}

func (s *Scheduler) recordExecution(ctx context.Context, sceneID string, index int, at time.Time) error {
	_, err := s.opts.DB.ExecContext(context.WithoutCancel(ctx),
		`INSERT INTO cron_executions (scene_id, trigger_index, last_execution_timestamp)
		 VALUES (?, ?, ?)
		 ON CONFLICT (scene_id, trigger_index)
		 DO UPDATE SET last_execution_timestamp = excluded.last_execution_timestamp`,
		sceneID, index, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("upserting cron execution: %w", err)
	}
	return nil
}
