package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// Logger defines the logging interface used by the trackers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TriggerSink receives the scene triggers trackers derive from device
// events. The scene engine implements it.
type TriggerSink interface {
	OnTrigger(ctx context.Context, trig automation.Trigger, skipConditions bool) int
}

// Metrics mirrors logged readings to a time-series store. The InfluxDB
// client implements it.
type Metrics interface {
	WriteDeviceMetric(deviceID string, measurement string, value float64)
}

// SceneLister lists scene definitions.
type SceneLister interface {
	ListScenes() []automation.Scene
}

// Defaults.
const (
	defaultSnapshotInterval = 60 * time.Second
	defaultHistoryLimit     = 100
	maxHistoryLimit         = 1000
	triggerQueueSize        = 100
	snapshotReadTimeout     = 5 * time.Second
)

// Options carries the collaborators shared by every tracker. DB is required
// for trackers that persist history; the rest are optional.
type Options struct {
	DB      *sql.DB
	Sink    TriggerSink
	Metrics Metrics
	Logger  Logger

	// SnapshotInterval is how often periodic trackers log every tracked
	// device's current value (default 60s).
	SnapshotInterval time.Duration

	// Now overrides the clock used for stored timestamps.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.SnapshotInterval <= 0 {
		o.SnapshotInterval = defaultSnapshotInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// HistoryQuery bounds a history lookup.
type HistoryQuery struct {
	// Since excludes older rows when non-zero.
	Since time.Time

	// Limit caps the number of rows (default 100, max 1000).
	Limit int
}

func (q HistoryQuery) limit() int {
	switch {
	case q.Limit <= 0:
		return defaultHistoryLimit
	case q.Limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return q.Limit
	}
}

func (q HistoryQuery) sinceMillis() int64 {
	if q.Since.IsZero() {
		return 0
	}
	return q.Since.UnixMilli()
}

// ─── Subscriptions ──────────────────────────────────────────────────────────

// tracked is one device a tracker is subscribed to.
type tracked struct {
	dev    *device.Device
	unsubs []func()
}

// subscriptions is the per-tracker map of tracked devices, keyed by id.
type subscriptions struct {
	mu       sync.Mutex
	byDevice map[string]tracked
}

func newSubscriptions() *subscriptions {
	return &subscriptions{byDevice: make(map[string]tracked)}
}

// track subscribes to d with attach unless d is already tracked. A new
// device instance under a known id replaces the old subscription. attach
// returns nil when the device has nothing to track.
func (s *subscriptions) track(d *device.Device, attach func(d *device.Device) []func()) bool {
	s.mu.Lock()
	old, exists := s.byDevice[d.ID()]
	if exists && old.dev == d {
		s.mu.Unlock()
		return false
	}
	delete(s.byDevice, d.ID())
	s.mu.Unlock()

	for _, u := range old.unsubs {
		u()
	}

	unsubs := attach(d)
	if len(unsubs) == 0 {
		return false
	}

	s.mu.Lock()
	s.byDevice[d.ID()] = tracked{dev: d, unsubs: unsubs}
	s.mu.Unlock()
	return true
}

// devices returns every tracked device.
func (s *subscriptions) devices() []*device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*device.Device, 0, len(s.byDevice))
	for _, t := range s.byDevice {
		out = append(out, t.dev)
	}
	return out
}

// has reports whether the device id is tracked.
func (s *subscriptions) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byDevice[id]
	return ok
}

// close drops every subscription.
func (s *subscriptions) close() {
	s.mu.Lock()
	all := s.byDevice
	s.byDevice = make(map[string]tracked)
	s.mu.Unlock()

	for _, t := range all {
		for _, u := range t.unsubs {
			u()
		}
	}
}

// ─── Trigger Dispatch ───────────────────────────────────────────────────────

// dispatcher hands triggers to the sink on a single worker goroutine, so
// device callbacks never block on scene execution and triggers from one
// tracker reach the engine in order.
type dispatcher struct {
	sink   TriggerSink
	logger Logger
	queue  chan automation.Trigger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

func newDispatcher(sink TriggerSink, logger Logger) *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &dispatcher{
		sink:   sink,
		logger: logger,
		queue:  make(chan automation.Trigger, triggerQueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for trig := range d.queue {
		if d.sink == nil {
			continue
		}
		d.sink.OnTrigger(d.ctx, trig, false)
	}
}

// send queues trig. A full queue drops the trigger rather than blocking the
// device callback.
func (d *dispatcher) send(trig automation.Trigger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- trig:
	default:
		d.dropped.Add(1)
		d.logger.Warn("trigger queue full, dropping trigger", "type", trig.Type, "source", trig.Source())
	}
}

// close stops accepting triggers, cancels any scene run in progress and
// waits for the worker to exit.
func (d *dispatcher) close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.cancel()
	<-d.done
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

// ensureSchema runs idempotent CREATE statements.
func ensureSchema(db *sql.DB, table string, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("creating %s: %w", table, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullFloat converts a cell lookup into a nullable column value.
func nullFloat(v float64, ok bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func nullBool(v bool, ok bool) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(boolToInt(v)), Valid: ok}
}

func nullString(v string, ok bool) sql.NullString {
	return sql.NullString{String: v, Valid: ok}
}

func nullInt(v int, ok bool) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: ok}
}

// ─── Snapshot Loop ──────────────────────────────────────────────────────────

// runEvery calls fn on every tick of interval until ctx is done.
func runEvery(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}
