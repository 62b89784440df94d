package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// BooleanStateRecord is one logged contact or leak sensor change.
type BooleanStateRecord struct {
	DeviceID  string    `json:"deviceId"`
	State     bool      `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// BooleanStateTracker logs contact sensor changes. The value present when a
// device is first tracked is not logged, and a change equal to the last
// stored row is skipped, so restarts do not duplicate rows.
type BooleanStateTracker struct {
	opts Options
	subs *subscriptions
}

// NewBooleanStateTracker creates the tracker and its table.
func NewBooleanStateTracker(opts Options) (*BooleanStateTracker, error) {
	opts = opts.withDefaults()
	if opts.DB == nil {
		return nil, ErrNoDatabase
	}
	err := ensureSchema(opts.DB, "boolean_state_events",
		`CREATE TABLE IF NOT EXISTS boolean_state_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			state INTEGER NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_boolean_state_events_device_time
			ON boolean_state_events(device_id, timestamp DESC)`,
	)
	if err != nil {
		return nil, err
	}
	return &BooleanStateTracker{opts: opts, subs: newSubscriptions()}, nil
}

// TrackDevices subscribes to every boolean state sensor of devs.
func (t *BooleanStateTracker) TrackDevices(devs []*device.Device) {
	for _, d := range devs {
		if t.subs.track(d, t.attach) {
			t.opts.Logger.Debug("tracking boolean state", "device_id", d.ID())
		}
	}
}

func (t *BooleanStateTracker) attach(d *device.Device) []func() {
	sensors := device.AllClustersOf[cluster.BooleanState](d, cluster.NameBooleanState)
	unsubs := make([]func(), 0, len(sensors))
	for _, s := range sensors {
		id, cell := d.ID(), s.State()
		unsubs = append(unsubs, cell.Subscribe(func(state bool, initial bool) {
			if initial {
				return
			}
			if _, ok := cell.Lookup(); !ok {
				return
			}
			t.record(id, state)
		}))
	}
	return unsubs
}

func (t *BooleanStateTracker) record(deviceID string, state bool) {
	ctx := context.Background()
	var last int
	err := t.opts.DB.QueryRowContext(ctx,
		`SELECT state FROM boolean_state_events
		 WHERE device_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, deviceID).Scan(&last)
	switch {
	case err == nil && (last != 0) == state:
		return
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		t.opts.Logger.Error("reading last boolean state", "device_id", deviceID, "error", err)
	}

	_, err = t.opts.DB.ExecContext(ctx,
		`INSERT INTO boolean_state_events (device_id, state, timestamp) VALUES (?, ?, ?)`,
		deviceID, boolToInt(state), t.opts.Now().UnixMilli())
	if err != nil {
		t.opts.Logger.Error("logging boolean state", "device_id", deviceID, "error", err)
		return
	}
	t.opts.Logger.Info("boolean state changed", "device_id", deviceID, "state", state)
}

// History returns the device's state changes, newest first.
func (t *BooleanStateTracker) History(ctx context.Context, deviceID string, q HistoryQuery) ([]BooleanStateRecord, error) {
	rows, err := t.opts.DB.QueryContext(ctx,
		`SELECT device_id, state, timestamp FROM boolean_state_events
		 WHERE device_id = ? AND timestamp >= ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`,
		deviceID, q.sinceMillis(), q.limit())
	if err != nil {
		return nil, fmt.Errorf("querying boolean state history: %w", err)
	}
	defer rows.Close()

	records := []BooleanStateRecord{}
	for rows.Next() {
		var (
			r     BooleanStateRecord
			state int
			ts    int64
		)
		if err := rows.Scan(&r.DeviceID, &state, &ts); err != nil {
			return nil, fmt.Errorf("scanning boolean state row: %w", err)
		}
		r.State = state != 0
		r.Timestamp = time.UnixMilli(ts)
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastChanged returns when the device's state last differed from the row
// before it. A device with a single row reports that row.
func (t *BooleanStateTracker) LastChanged(ctx context.Context, deviceID string) (time.Time, bool, error) {
	var ts int64
	err := t.opts.DB.QueryRowContext(ctx,
		`SELECT timestamp FROM (
			SELECT id, timestamp, state,
				LAG(state) OVER (ORDER BY timestamp, id) AS prev
			FROM boolean_state_events WHERE device_id = ?
		 )
		 WHERE prev IS NULL OR prev != state
		 ORDER BY timestamp DESC, id DESC LIMIT 1`, deviceID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying last boolean change: %w", err)
	}
	return time.UnixMilli(ts), true, nil
}

// Close drops every subscription.
func (t *BooleanStateTracker) Close() {
	t.subs.close()
}
