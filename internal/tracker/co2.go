package tracker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// co2MinDelta is the concentration change, in ppm, logged without waiting
// for the next snapshot.
const co2MinDelta = 10

// CO2Record is one logged carbon dioxide reading.
type CO2Record struct {
	DeviceID      string                     `json:"deviceId"`
	Concentration float64                    `json:"concentration"`
	Level         cluster.ConcentrationLevel `json:"level"`
	Timestamp     time.Time                  `json:"timestamp"`
}

// CO2Tracker logs carbon dioxide concentration together with the sensor's
// qualitative level. It follows the numeric tracker policy: periodic
// snapshots plus immediate logging of changes of 10 ppm or more.
type CO2Tracker struct {
	opts Options
	subs *subscriptions

	mu   sync.Mutex
	last map[string]float64
}

// NewCO2Tracker creates the tracker and its table.
func NewCO2Tracker(opts Options) (*CO2Tracker, error) {
	opts = opts.withDefaults()
	if opts.DB == nil {
		return nil, ErrNoDatabase
	}
	err := ensureSchema(opts.DB, "co2_events",
		`CREATE TABLE IF NOT EXISTS co2_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			concentration REAL NOT NULL,
			level TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_co2_events_device_time
			ON co2_events(device_id, timestamp DESC)`,
	)
	if err != nil {
		return nil, err
	}
	return &CO2Tracker{opts: opts, subs: newSubscriptions(), last: make(map[string]float64)}, nil
}

// TrackDevices subscribes to every CO2 sensor in devs.
func (t *CO2Tracker) TrackDevices(devs []*device.Device) {
	for _, d := range devs {
		if t.subs.track(d, t.attach) {
			t.opts.Logger.Debug("tracking co2", "device_id", d.ID())
		}
	}
}

func (t *CO2Tracker) attach(d *device.Device) []func() {
	sensor, ok := device.ClusterOf[cluster.CarbonDioxide](d, cluster.NameCarbonDioxide)
	if !ok {
		return nil
	}
	id := d.ID()
	cell := sensor.Concentration()
	return []func(){cell.Subscribe(func(_ float64, initial bool) {
		v, defined := cell.Lookup()
		if !defined {
			return
		}
		t.push(id, v, sensor.Level().Current(), initial)
	})}
}

func (t *CO2Tracker) push(deviceID string, v float64, level cluster.ConcentrationLevel, initial bool) {
	t.mu.Lock()
	last, known := t.last[deviceID]
	switch {
	case initial && known:
		t.last[deviceID] = v
		t.mu.Unlock()
		return
	case known && math.Abs(v-last) < co2MinDelta:
		t.mu.Unlock()
		return
	}
	t.last[deviceID] = v
	t.mu.Unlock()

	t.record(deviceID, v, level)
}

func (t *CO2Tracker) record(deviceID string, v float64, level cluster.ConcentrationLevel) {
	if level == "" {
		level = cluster.LevelUnknown
	}
	_, err := t.opts.DB.ExecContext(context.Background(),
		`INSERT INTO co2_events (device_id, concentration, level, timestamp) VALUES (?, ?, ?, ?)`,
		deviceID, v, string(level), t.opts.Now().UnixMilli())
	if err != nil {
		t.opts.Logger.Error("logging co2", "device_id", deviceID, "error", err)
		return
	}
	if t.opts.Metrics != nil {
		t.opts.Metrics.WriteDeviceMetric(deviceID, "co2_ppm", v)
	}
}

// Snapshot logs the current reading of every tracked sensor.
func (t *CO2Tracker) Snapshot(ctx context.Context) {
	for _, d := range t.subs.devices() {
		sensor, ok := device.ClusterOf[cluster.CarbonDioxide](d, cluster.NameCarbonDioxide)
		if !ok {
			continue
		}
		v, defined := sensor.Concentration().Lookup()
		if !defined {
			readCtx, cancel := context.WithTimeout(ctx, snapshotReadTimeout)
			var err error
			v, err = sensor.Concentration().Get(readCtx)
			cancel()
			if err != nil {
				t.opts.Logger.Debug("co2 snapshot skipped", "device_id", d.ID(), "error", err)
				continue
			}
		}
		t.mu.Lock()
		t.last[d.ID()] = v
		t.mu.Unlock()
		t.record(d.ID(), v, sensor.Level().Current())
	}
}

// Run takes a snapshot every SnapshotInterval until ctx is done.
func (t *CO2Tracker) Run(ctx context.Context) error {
	return runEvery(ctx, t.opts.SnapshotInterval, t.Snapshot)
}

// History returns the device's logged readings, newest first.
func (t *CO2Tracker) History(ctx context.Context, deviceID string, q HistoryQuery) ([]CO2Record, error) {
	rows, err := t.opts.DB.QueryContext(ctx,
		`SELECT device_id, concentration, level, timestamp FROM co2_events
		 WHERE device_id = ? AND timestamp >= ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`,
		deviceID, q.sinceMillis(), q.limit())
	if err != nil {
		return nil, fmt.Errorf("querying co2 history: %w", err)
	}
	defer rows.Close()

	records := []CO2Record{}
	for rows.Next() {
		var (
			r     CO2Record
			level string
			ts    int64
		)
		if err := rows.Scan(&r.DeviceID, &r.Concentration, &level, &ts); err != nil {
			return nil, fmt.Errorf("scanning co2 row: %w", err)
		}
		r.Level = cluster.ConcentrationLevel(level)
		r.Timestamp = time.UnixMilli(ts)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close drops every subscription.
func (t *CO2Tracker) Close() {
	t.subs.close()
}
