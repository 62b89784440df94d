package tracker

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type recordingSink struct {
	mu       sync.Mutex
	triggers []automation.Trigger
}

func (s *recordingSink) OnTrigger(_ context.Context, trig automation.Trigger, _ bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, trig)
	return 1
}

func (s *recordingSink) all() []automation.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]automation.Trigger(nil), s.triggers...)
}

type metricPoint struct {
	deviceID    string
	measurement string
	value       float64
}

type recordingMetrics struct {
	mu     sync.Mutex
	points []metricPoint
}

func (m *recordingMetrics) WriteDeviceMetric(deviceID, measurement string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, metricPoint{deviceID, measurement, value})
}

func (m *recordingMetrics) all() []metricPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]metricPoint(nil), m.points...)
}

type staticScenes struct {
	mu     sync.Mutex
	scenes []automation.Scene
}

func (s *staticScenes) ListScenes() []automation.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]automation.Scene(nil), s.scenes...)
}

func (s *staticScenes) set(scenes ...automation.Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes = scenes
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// testClock advances by one second on every read so rows have distinct,
// ordered timestamps.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

type testEnv struct {
	db      *sql.DB
	sink    *recordingSink
	metrics *recordingMetrics
	clock   *testClock
	opts    Options
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:      setupTestDB(t),
		sink:    &recordingSink{},
		metrics: &recordingMetrics{},
		clock:   newTestClock(),
	}
	env.opts = Options{
		DB:               env.db,
		Sink:             env.sink,
		Metrics:          env.metrics,
		SnapshotInterval: 10 * time.Millisecond,
		Now:              env.clock.Now,
	}
	return env
}

func newDevice(id string, clusters ...cluster.Cluster) *device.Device {
	return device.New(device.Info{ID: id, Source: device.SourceMQTT, Name: id}, device.NewEndpoint(clusters))
}

func ptr[T any](v T) *T { return &v }

// ─── Shared Behaviour ───────────────────────────────────────────────────────

func TestHistoryQuery_Limit(t *testing.T) {
	assert.Equal(t, defaultHistoryLimit, HistoryQuery{}.limit())
	assert.Equal(t, 5, HistoryQuery{Limit: 5}.limit())
	assert.Equal(t, maxHistoryLimit, HistoryQuery{Limit: 50000}.limit())
	assert.Equal(t, int64(0), HistoryQuery{}.sinceMillis())
}

func TestNewTrackers_RequireDatabase(t *testing.T) {
	_, err := NewOccupancyTracker(Options{})
	assert.ErrorIs(t, err, ErrNoDatabase)
	_, err = NewPowerTracker(Options{})
	assert.ErrorIs(t, err, ErrNoDatabase)
	_, err = NewFridgeTracker(Options{})
	assert.ErrorIs(t, err, ErrNoDatabase)
	_, err = NewScheduler(&staticScenes{}, nil, SchedulerOptions{})
	assert.ErrorIs(t, err, ErrNoDatabase)
}

func TestNewTrackers_SchemaIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	for range 2 {
		tr, err := NewTemperatureTracker(env.opts)
		require.NoError(t, err)
		tr.Close()
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	d := newDispatcher(sink, noopLogger{})

	// One trigger is held by the worker; the queue holds the rest.
	for range triggerQueueSize + 5 {
		d.send(automation.Trigger{Type: automation.TriggerWebhook, WebhookName: "x"})
	}
	assert.GreaterOrEqual(t, d.dropped.Load(), uint64(4))

	close(block)
	d.close()
	d.send(automation.Trigger{Type: automation.TriggerWebhook}) // no panic after close
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) OnTrigger(ctx context.Context, _ automation.Trigger, _ bool) int {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return 0
}

func newDeviceList(id string, clusters ...cluster.Cluster) []*device.Device {
	return []*device.Device{newDevice(id, clusters...)}
}

func newDeviceListOf(devs ...*device.Device) []*device.Device {
	return devs
}
