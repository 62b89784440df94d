package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// PressRecord is one logged button press.
type PressRecord struct {
	DeviceID    string    `json:"deviceId"`
	ButtonIndex int       `json:"buttonIndex"`
	Timestamp   time.Time `json:"timestamp"`
}

// SwitchTracker logs button presses and forwards each one as a button-press
// trigger. Every press counts; there is no state to deduplicate.
type SwitchTracker struct {
	opts     Options
	subs     *subscriptions
	dispatch *dispatcher
}

// NewSwitchTracker creates the switch tracker and its table.
func NewSwitchTracker(opts Options) (*SwitchTracker, error) {
	opts = opts.withDefaults()
	if opts.DB == nil {
		return nil, ErrNoDatabase
	}
	err := ensureSchema(opts.DB, "button_press_events",
		`CREATE TABLE IF NOT EXISTS button_press_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			button_index INTEGER NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_button_press_events_device_time
			ON button_press_events(device_id, timestamp DESC)`,
	)
	if err != nil {
		return nil, err
	}
	return &SwitchTracker{
		opts:     opts,
		subs:     newSubscriptions(),
		dispatch: newDispatcher(opts.Sink, opts.Logger),
	}, nil
}

// TrackDevices subscribes to every button of devs.
func (t *SwitchTracker) TrackDevices(devs []*device.Device) {
	for _, d := range devs {
		if t.subs.track(d, t.attach) {
			t.opts.Logger.Debug("tracking switch", "device_id", d.ID())
		}
	}
}

func (t *SwitchTracker) attach(d *device.Device) []func() {
	buttons := device.AllClustersOf[cluster.Switch](d, cluster.NameSwitch)
	unsubs := make([]func(), 0, len(buttons))
	for _, b := range buttons {
		id, index := d.ID(), b.Index()
		unsubs = append(unsubs, b.OnPress().Listen(func(struct{}) {
			t.record(id, index)
		}))
	}
	return unsubs
}

func (t *SwitchTracker) record(deviceID string, index int) {
	_, err := t.opts.DB.ExecContext(context.Background(),
		`INSERT INTO button_press_events (device_id, button_index, timestamp) VALUES (?, ?, ?)`,
		deviceID, index, t.opts.Now().UnixMilli())
	if err != nil {
		t.opts.Logger.Error("logging button press", "device_id", deviceID, "error", err)
	}
	t.opts.Logger.Info("button pressed", "device_id", deviceID, "button_index", index)

	t.dispatch.send(automation.Trigger{
		Type:        automation.TriggerButtonPress,
		DeviceID:    deviceID,
		ButtonIndex: &index,
	})
}

// History returns the device's presses, newest first. A non-nil index
// restricts the result to that button.
func (t *SwitchTracker) History(ctx context.Context, deviceID string, index *int, q HistoryQuery) ([]PressRecord, error) {
	query := `SELECT device_id, button_index, timestamp FROM button_press_events
		WHERE device_id = ? AND timestamp >= ?`
	args := []any{deviceID, q.sinceMillis()}
	if index != nil {
		query += ` AND button_index = ?`
		args = append(args, *index)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, q.limit())

	rows, err := t.opts.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying button history: %w", err)
	}
	defer rows.Close()

	records := []PressRecord{}
	for rows.Next() {
		var (
			r  PressRecord
			ts int64
		)
		if err := rows.Scan(&r.DeviceID, &r.ButtonIndex, &ts); err != nil {
			return nil, fmt.Errorf("scanning button row: %w", err)
		}
		r.Timestamp = time.UnixMilli(ts)
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastPressed returns the device's most recent press of any button.
func (t *SwitchTracker) LastPressed(ctx context.Context, deviceID string) (PressRecord, bool, error) {
	var (
		r  PressRecord
		ts int64
	)
	err := t.opts.DB.QueryRowContext(ctx,
		`SELECT device_id, button_index, timestamp FROM button_press_events
		 WHERE device_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, deviceID).
		Scan(&r.DeviceID, &r.ButtonIndex, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return PressRecord{}, false, nil
	}
	if err != nil {
		return PressRecord{}, false, fmt.Errorf("querying last press: %w", err)
	}
	r.Timestamp = time.UnixMilli(ts)
	return r, true, nil
}

// Close drops every subscription and stops trigger dispatch.
func (t *SwitchTracker) Close() {
	t.subs.close()
	t.dispatch.close()
}
