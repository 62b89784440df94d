package tracker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// NumericRecord is one logged sensor reading.
type NumericRecord struct {
	DeviceID  string    `json:"deviceId"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// numericSignal describes one kind of numeric reading.
type numericSignal struct {
	kind        string
	table       string
	column      string
	measurement string
	cluster     cluster.Name

	// cell returns the reading of a matching cluster.
	cell func(c cluster.Cluster) (reactive.Cell[float64], bool)

	// scale converts the cell's unit to the stored unit.
	scale float64

	// significant reports whether a pushed value differs enough from the
	// last logged one to be written straight away.
	significant func(last, next float64) bool
}

func minDelta(d float64) func(last, next float64) bool {
	return func(last, next float64) bool {
		return math.Abs(next-last) >= d
	}
}

// NumericTracker logs one numeric reading per device. Every SnapshotInterval
// it logs the current value of every tracked device; in between, a pushed
// value is logged straight away when it moves far enough from the last
// logged value. Every logged value is mirrored to Metrics.
type NumericTracker struct {
	signal numericSignal
	opts   Options
	subs   *subscriptions

	mu   sync.Mutex
	last map[string]float64
}

// NewPowerTracker logs active power in watts. Changes of 1 W or more are
// logged immediately.
func NewPowerTracker(opts Options) (*NumericTracker, error) {
	return newNumericTracker(opts, numericSignal{
		kind:        KindPower,
		table:       "power_events",
		column:      "active_power",
		measurement: "power_watts",
		cluster:     cluster.NameElectricalPower,
		cell: func(c cluster.Cluster) (reactive.Cell[float64], bool) {
			p, ok := cluster.As[cluster.ElectricalPower](c, cluster.NameElectricalPower)
			if !ok {
				return nil, false
			}
			return p.ActivePower(), true
		},
		significant: minDelta(1),
	})
}

// NewTemperatureTracker logs temperature in degrees Celsius. Changes of
// 0.1 °C or more are logged immediately.
func NewTemperatureTracker(opts Options) (*NumericTracker, error) {
	return newNumericTracker(opts, numericSignal{
		kind:        KindTemperature,
		table:       "temperature_events",
		column:      "temperature",
		measurement: "temperature_celsius",
		cluster:     cluster.NameTemperatureMeasurement,
		cell: func(c cluster.Cluster) (reactive.Cell[float64], bool) {
			m, ok := cluster.As[cluster.TemperatureMeasurement](c, cluster.NameTemperatureMeasurement)
			if !ok {
				return nil, false
			}
			return m.Temperature(), true
		},
		significant: minDelta(0.1),
	})
}

// NewHumidityTracker logs relative humidity as a percentage. Changes of one
// percentage point or more are logged immediately.
func NewHumidityTracker(opts Options) (*NumericTracker, error) {
	return newNumericTracker(opts, numericSignal{
		kind:        KindHumidity,
		table:       "humidity_events",
		column:      "humidity",
		measurement: "humidity_percent",
		cluster:     cluster.NameRelativeHumidityMeasurement,
		cell: func(c cluster.Cluster) (reactive.Cell[float64], bool) {
			m, ok := cluster.As[cluster.RelativeHumidityMeasurement](c, cluster.NameRelativeHumidityMeasurement)
			if !ok {
				return nil, false
			}
			return m.RelativeHumidity(), true
		},
		scale:       100,
		significant: minDelta(1),
	})
}

// NewIlluminanceTracker logs illuminance in lux. A change is logged
// immediately when it is at least 5 lux and at least 10% of the last value.
func NewIlluminanceTracker(opts Options) (*NumericTracker, error) {
	return newNumericTracker(opts, numericSignal{
		kind:        KindIlluminance,
		table:       "illuminance_events",
		column:      "illuminance",
		measurement: "illuminance_lux",
		cluster:     cluster.NameIlluminanceMeasurement,
		cell: func(c cluster.Cluster) (reactive.Cell[float64], bool) {
			m, ok := cluster.As[cluster.IlluminanceMeasurement](c, cluster.NameIlluminanceMeasurement)
			if !ok {
				return nil, false
			}
			return m.Illuminance(), true
		},
		significant: func(last, next float64) bool {
			return math.Abs(next-last) >= math.Max(5, math.Abs(last)*0.1)
		},
	})
}

func newNumericTracker(opts Options, signal numericSignal) (*NumericTracker, error) {
	opts = opts.withDefaults()
	if opts.DB == nil {
		return nil, ErrNoDatabase
	}
	if signal.scale == 0 {
		signal.scale = 1
	}
	err := ensureSchema(opts.DB, signal.table,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			%s REAL NOT NULL,
			timestamp INTEGER NOT NULL
		)`, signal.table, signal.column),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_device_time
			ON %s(device_id, timestamp DESC)`, signal.table, signal.table),
	)
	if err != nil {
		return nil, err
	}
	return &NumericTracker{
		signal: signal,
		opts:   opts,
		subs:   newSubscriptions(),
		last:   make(map[string]float64),
	}, nil
}

// Kind returns the history kind served by the tracker.
func (t *NumericTracker) Kind() string {
	return t.signal.kind
}

// TrackDevices subscribes to the reading of every matching device in devs.
func (t *NumericTracker) TrackDevices(devs []*device.Device) {
	for _, d := range devs {
		if t.subs.track(d, t.attach) {
			t.opts.Logger.Debug("tracking "+t.signal.kind, "device_id", d.ID())
		}
	}
}

func (t *NumericTracker) attach(d *device.Device) []func() {
	cell, ok := t.cellOf(d)
	if !ok {
		return nil
	}
	id := d.ID()
	return []func(){cell.Subscribe(func(_ float64, initial bool) {
		v, defined := cell.Lookup()
		if !defined {
			return
		}
		t.push(id, v*t.signal.scale, initial)
	})}
}

func (t *NumericTracker) cellOf(d *device.Device) (reactive.Cell[float64], bool) {
	c, ok := d.ClusterByName(t.signal.cluster)
	if !ok {
		return nil, false
	}
	return t.signal.cell(c)
}

// push handles a reading delivered by a subscription. The value present
// when a subscription starts only seeds the comparison unless nothing has
// been logged for the device yet.
func (t *NumericTracker) push(deviceID string, v float64, initial bool) {
	t.mu.Lock()
	last, known := t.last[deviceID]
	switch {
	case initial && known:
		t.last[deviceID] = v
		t.mu.Unlock()
		return
	case known && !t.signal.significant(last, v):
		t.mu.Unlock()
		return
	}
	t.last[deviceID] = v
	t.mu.Unlock()

	t.record(deviceID, v)
}

func (t *NumericTracker) record(deviceID string, v float64) {
	_, err := t.opts.DB.ExecContext(context.Background(),
		fmt.Sprintf(`INSERT INTO %s (device_id, %s, timestamp) VALUES (?, ?, ?)`, t.signal.table, t.signal.column),
		deviceID, v, t.opts.Now().UnixMilli())
	if err != nil {
		t.opts.Logger.Error("logging "+t.signal.kind, "device_id", deviceID, "error", err)
		return
	}
	if t.opts.Metrics != nil {
		t.opts.Metrics.WriteDeviceMetric(deviceID, t.signal.measurement, v)
	}
}

// Snapshot logs the current reading of every tracked device. Devices whose
// reading is not yet known get a bounded wait for one.
func (t *NumericTracker) Snapshot(ctx context.Context) {
	for _, d := range t.subs.devices() {
		cell, ok := t.cellOf(d)
		if !ok {
			continue
		}
		v, defined := cell.Lookup()
		if !defined {
			readCtx, cancel := context.WithTimeout(ctx, snapshotReadTimeout)
			var err error
			v, err = cell.Get(readCtx)
			cancel()
			if err != nil {
				t.opts.Logger.Debug(t.signal.kind+" snapshot skipped", "device_id", d.ID(), "error", err)
				continue
			}
		}
		v *= t.signal.scale

		t.mu.Lock()
		t.last[d.ID()] = v
		t.mu.Unlock()
		t.record(d.ID(), v)
	}
}

// Run takes a snapshot every SnapshotInterval until ctx is done.
func (t *NumericTracker) Run(ctx context.Context) error {
	return runEvery(ctx, t.opts.SnapshotInterval, t.Snapshot)
}

// History returns the device's logged readings, newest first.
func (t *NumericTracker) History(ctx context.Context, deviceID string, q HistoryQuery) ([]NumericRecord, error) {
	return t.query(ctx, `device_id = ? AND timestamp >= ?`, []any{deviceID, q.sinceMillis()}, q.limit())
}

// AllHistory returns logged readings of every device, newest first.
func (t *NumericTracker) AllHistory(ctx context.Context, q HistoryQuery) ([]NumericRecord, error) {
	return t.query(ctx, `timestamp >= ?`, []any{q.sinceMillis()}, q.limit())
}

func (t *NumericTracker) query(ctx context.Context, where string, args []any, limit int) ([]NumericRecord, error) {
	rows, err := t.opts.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT device_id, %s, timestamp FROM %s WHERE %s
			ORDER BY timestamp DESC, id DESC LIMIT ?`, t.signal.column, t.signal.table, where),
		append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("querying %s history: %w", t.signal.kind, err)
	}
	defer rows.Close()

	records := []NumericRecord{}
	for rows.Next() {
		var (
			r  NumericRecord
			ts int64
		)
		if err := rows.Scan(&r.DeviceID, &r.Value, &ts); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", t.signal.kind, err)
		}
		r.Timestamp = time.UnixMilli(ts)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close drops every subscription.
func (t *NumericTracker) Close() {
	t.subs.close()
}
