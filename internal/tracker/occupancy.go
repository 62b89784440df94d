package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// OccupancyRecord is one logged occupancy transition.
type OccupancyRecord struct {
	DeviceID  string    `json:"deviceId"`
	Occupied  bool      `json:"occupied"`
	Timestamp time.Time `json:"timestamp"`
}

// OccupancyTracker logs occupancy transitions and forwards them to the scene
// engine as occupancy triggers. Repeated identical reports are suppressed.
type OccupancyTracker struct {
	opts     Options
	subs     *subscriptions
	dispatch *dispatcher
}

// NewOccupancyTracker creates the occupancy tracker and its table.
func NewOccupancyTracker(opts Options) (*OccupancyTracker, error) {
	opts = opts.withDefaults()
	if opts.DB == nil {
		return nil, ErrNoDatabase
	}
	err := ensureSchema(opts.DB, "occupancy_events",
		`CREATE TABLE IF NOT EXISTS occupancy_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			occupied INTEGER NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_occupancy_events_device_time
			ON occupancy_events(device_id, timestamp DESC)`,
	)
	if err != nil {
		return nil, err
	}
	return &OccupancyTracker{
		opts:     opts,
		subs:     newSubscriptions(),
		dispatch: newDispatcher(opts.Sink, opts.Logger),
	}, nil
}

// TrackDevices subscribes to every occupancy sensor of devs. Devices already
// tracked are skipped.
func (t *OccupancyTracker) TrackDevices(devs []*device.Device) {
	for _, d := range devs {
		if t.subs.track(d, t.attach) {
			t.opts.Logger.Debug("tracking occupancy", "device_id", d.ID())
		}
	}
}

func (t *OccupancyTracker) attach(d *device.Device) []func() {
	sensors := device.AllClustersOf[cluster.OccupancySensing](d, cluster.NameOccupancySensing)
	unsubs := make([]func(), 0, len(sensors))
	for _, s := range sensors {
		var (
			mu    sync.Mutex
			last  bool
			known bool
		)
		id := d.ID()
		unsubs = append(unsubs, s.OnOccupied().Listen(func(ev cluster.OccupancyEvent) {
			mu.Lock()
			if known && last == ev.Occupied {
				mu.Unlock()
				return
			}
			last, known = ev.Occupied, true
			mu.Unlock()
			t.record(id, ev.Occupied)
		}))
	}
	return unsubs
}

func (t *OccupancyTracker) record(deviceID string, occupied bool) {
	_, err := t.opts.DB.ExecContext(context.Background(),
		`INSERT INTO occupancy_events (device_id, occupied, timestamp) VALUES (?, ?, ?)`,
		deviceID, boolToInt(occupied), t.opts.Now().UnixMilli())
	if err != nil {
		t.opts.Logger.Error("logging occupancy", "device_id", deviceID, "error", err)
	}
	t.opts.Logger.Info("occupancy changed", "device_id", deviceID, "occupied", occupied)

	t.dispatch.send(automation.Trigger{
		Type:     automation.TriggerOccupancy,
		DeviceID: deviceID,
		Occupied: &occupied,
	})
}

// History returns the device's occupancy transitions, newest first.
func (t *OccupancyTracker) History(ctx context.Context, deviceID string, q HistoryQuery) ([]OccupancyRecord, error) {
	rows, err := t.opts.DB.QueryContext(ctx,
		`SELECT device_id, occupied, timestamp FROM occupancy_events
		 WHERE device_id = ? AND timestamp >= ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`,
		deviceID, q.sinceMillis(), q.limit())
	if err != nil {
		return nil, fmt.Errorf("querying occupancy history: %w", err)
	}
	defer rows.Close()

	records := []OccupancyRecord{}
	for rows.Next() {
		var (
			r        OccupancyRecord
			occupied int
			ts       int64
		)
		if err := rows.Scan(&r.DeviceID, &occupied, &ts); err != nil {
			return nil, fmt.Errorf("scanning occupancy row: %w", err)
		}
		r.Occupied = occupied != 0
		r.Timestamp = time.UnixMilli(ts)
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastOccupied returns when the device last reported occupancy. ok is false
// if it never has.
func (t *OccupancyTracker) LastOccupied(ctx context.Context, deviceID string) (time.Time, bool, error) {
	var ts int64
	err := t.opts.DB.QueryRowContext(ctx,
		`SELECT timestamp FROM occupancy_events
		 WHERE device_id = ? AND occupied = 1
		 ORDER BY timestamp DESC, id DESC LIMIT 1`, deviceID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying last occupancy: %w", err)
	}
	return time.UnixMilli(ts), true, nil
}

// Close drops every subscription and stops trigger dispatch.
func (t *OccupancyTracker) Close() {
	t.subs.close()
	t.dispatch.close()
}
