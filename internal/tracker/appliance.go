package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// FridgeRecord is one fridge snapshot. Fields the appliance has not reported
// are nil.
type FridgeRecord struct {
	DeviceID        string    `json:"deviceId"`
	Timestamp       time.Time `json:"timestamp"`
	FridgeTempC     *float64  `json:"fridgeTempC"`
	FreezerTempC    *float64  `json:"freezerTempC"`
	FreezerDoorOpen *bool     `json:"freezerDoorOpen"`
	CoolerDoorOpen  *bool     `json:"coolerDoorOpen"`
}

// WasherRecord is one washer snapshot. Fields the appliance has not
// reported are nil.
type WasherRecord struct {
	DeviceID             string    `json:"deviceId"`
	Timestamp            time.Time `json:"timestamp"`
	MachineState         *string   `json:"machineState"`
	Done                 *bool     `json:"done"`
	ProgressPercent      *float64  `json:"progressPercent"`
	Phase                *string   `json:"phase"`
	RemainingTimeMinutes *int      `json:"remainingTimeMinutes"`
}

// ApplianceTracker logs periodic snapshots of one appliance type. It does
// not react to pushes; appliance state is only sampled.
type ApplianceTracker[R any] struct {
	kind    string
	name    cluster.Name
	opts    Options
	subs    *subscriptions
	insert  func(ctx context.Context, db *sql.DB, deviceID string, ts int64, c cluster.Cluster) error
	history string
	scan    func(rows *sql.Rows) (R, error)
}

// NewFridgeTracker snapshots fridge temperatures and door states.
func NewFridgeTracker(opts Options) (*ApplianceTracker[FridgeRecord], error) {
	opts = opts.withDefaults()
	if opts.DB == nil {
		return nil, ErrNoDatabase
	}
	err := ensureSchema(opts.DB, "fridge_events",
		`CREATE TABLE IF NOT EXISTS fridge_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			fridge_temp_c REAL,
			freezer_temp_c REAL,
			freezer_door_open INTEGER,
			cooler_door_open INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fridge_events_device_time
			ON fridge_events(device_id, timestamp DESC)`,
	)
	if err != nil {
		return nil, err
	}
	return &ApplianceTracker[FridgeRecord]{
		kind: KindFridge,
		name: cluster.NameFridge,
		opts: opts,
		subs: newSubscriptions(),
		insert: func(ctx context.Context, db *sql.DB, deviceID string, ts int64, c cluster.Cluster) error {
			f, ok := cluster.As[cluster.Fridge](c, cluster.NameFridge)
			if !ok {
				return nil
			}
			_, err := db.ExecContext(ctx,
				`INSERT INTO fridge_events
					(device_id, timestamp, fridge_temp_c, freezer_temp_c, freezer_door_open, cooler_door_open)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				deviceID, ts,
				nullFloat(f.FridgeTemperature().Lookup()),
				nullFloat(f.FreezerTemperature().Lookup()),
				nullBool(f.FreezerDoorOpen().Lookup()),
				nullBool(f.CoolerDoorOpen().Lookup()),
			)
			return err
		},
		history: `SELECT device_id, timestamp, fridge_temp_c, freezer_temp_c, freezer_door_open, cooler_door_open
			FROM fridge_events WHERE device_id = ? AND timestamp >= ?
			ORDER BY timestamp DESC, id DESC LIMIT ?`,
		scan: func(rows *sql.Rows) (FridgeRecord, error) {
			var (
				r                      FridgeRecord
				ts                     int64
				fridgeTemp, freezerTmp sql.NullFloat64
				freezerDoor, coolDoor  sql.NullInt64
			)
			if err := rows.Scan(&r.DeviceID, &ts, &fridgeTemp, &freezerTmp, &freezerDoor, &coolDoor); err != nil {
				return r, err
			}
			r.Timestamp = time.UnixMilli(ts)
			r.FridgeTempC = floatPtr(fridgeTemp)
			r.FreezerTempC = floatPtr(freezerTmp)
			r.FreezerDoorOpen = boolPtr(freezerDoor)
			r.CoolerDoorOpen = boolPtr(coolDoor)
			return r, nil
		},
	}, nil
}

// NewWasherTracker snapshots washing machine cycle state.
func NewWasherTracker(opts Options) (*ApplianceTracker[WasherRecord], error) {
	opts = opts.withDefaults()
	if opts.DB == nil {
		return nil, ErrNoDatabase
	}
	err := ensureSchema(opts.DB, "washer_events",
		`CREATE TABLE IF NOT EXISTS washer_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			machine_state TEXT,
			done INTEGER,
			progress_percent REAL,
			phase TEXT,
			remaining_time_minutes INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_washer_events_device_time
			ON washer_events(device_id, timestamp DESC)`,
	)
	if err != nil {
		return nil, err
	}
	return &ApplianceTracker[WasherRecord]{
		kind: KindWasher,
		name: cluster.NameWasher,
		opts: opts,
		subs: newSubscriptions(),
		insert: func(ctx context.Context, db *sql.DB, deviceID string, ts int64, c cluster.Cluster) error {
			w, ok := cluster.As[cluster.Washer](c, cluster.NameWasher)
			if !ok {
				return nil
			}
			_, err := db.ExecContext(ctx,
				`INSERT INTO washer_events
					(device_id, timestamp, machine_state, done, progress_percent, phase, remaining_time_minutes)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				deviceID, ts,
				nullString(w.MachineState().Lookup()),
				nullBool(w.Done().Lookup()),
				nullFloat(w.ProgressPercent().Lookup()),
				nullString(w.Phase().Lookup()),
				nullInt(w.RemainingTimeMinutes().Lookup()),
			)
			return err
		},
		history: `SELECT device_id, timestamp, machine_state, done, progress_percent, phase, remaining_time_minutes
			FROM washer_events WHERE device_id = ? AND timestamp >= ?
			ORDER BY timestamp DESC, id DESC LIMIT ?`,
		scan: func(rows *sql.Rows) (WasherRecord, error) {
			var (
				r            WasherRecord
				ts           int64
				state, phase sql.NullString
				done         sql.NullInt64
				progress     sql.NullFloat64
				remaining    sql.NullInt64
			)
			if err := rows.Scan(&r.DeviceID, &ts, &state, &done, &progress, &phase, &remaining); err != nil {
				return r, err
			}
			r.Timestamp = time.UnixMilli(ts)
			r.MachineState = stringPtr(state)
			r.Done = boolPtr(done)
			r.ProgressPercent = floatPtr(progress)
			r.Phase = stringPtr(phase)
			if remaining.Valid {
				m := int(remaining.Int64)
				r.RemainingTimeMinutes = &m
			}
			return r, nil
		},
	}, nil
}

// TrackDevices adds every device in devs that has the appliance cluster.
func (t *ApplianceTracker[R]) TrackDevices(devs []*device.Device) {
	for _, d := range devs {
		if t.subs.track(d, t.attach) {
			t.opts.Logger.Debug("tracking "+t.kind, "device_id", d.ID())
		}
	}
}

// attach only records membership; snapshots read the cells directly.
func (t *ApplianceTracker[R]) attach(d *device.Device) []func() {
	if _, ok := d.ClusterByName(t.name); !ok {
		return nil
	}
	return []func(){func() {}}
}

// Snapshot logs the current state of every tracked appliance.
func (t *ApplianceTracker[R]) Snapshot(ctx context.Context) {
	ts := t.opts.Now().UnixMilli()
	for _, d := range t.subs.devices() {
		c, ok := d.ClusterByName(t.name)
		if !ok {
			continue
		}
		if err := t.insert(ctx, t.opts.DB, d.ID(), ts, c); err != nil {
			t.opts.Logger.Error("logging "+t.kind, "device_id", d.ID(), "error", err)
		}
	}
}

// Run takes a snapshot every SnapshotInterval until ctx is done.
func (t *ApplianceTracker[R]) Run(ctx context.Context) error {
	return runEvery(ctx, t.opts.SnapshotInterval, t.Snapshot)
}

// History returns the device's snapshots, newest first.
func (t *ApplianceTracker[R]) History(ctx context.Context, deviceID string, q HistoryQuery) ([]R, error) {
	rows, err := t.opts.DB.QueryContext(ctx, t.history, deviceID, q.sinceMillis(), q.limit())
	if err != nil {
		return nil, fmt.Errorf("querying %s history: %w", t.kind, err)
	}
	defer rows.Close()

	records := []R{}
	for rows.Next() {
		r, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", t.kind, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close forgets every tracked device.
func (t *ApplianceTracker[R]) Close() {
	t.subs.close()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolPtr(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Int64 != 0
	return &b
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
