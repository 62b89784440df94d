package device

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/reactive"
	"github.com/nerrad567/gray-logic-hub/internal/store"
)

// Store bucket names.
const (
	bucketDevices = "devices"
	bucketRooms   = "rooms"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// StatusRecorder receives online/offline transitions from the registry.
type StatusRecorder interface {
	RecordStatusChange(ctx context.Context, deviceID string, status Status, source Source) error
}

// Registry is the process-wide map of live devices plus the persisted side
// table describing every device ever seen.
//
// All public methods are thread-safe.
type Registry struct {
	devices *reactive.Data[map[string]*Device]
	stored  *store.Collection[StoredDevice]
	rooms   *store.Collection[roomInfo]
	history StatusRecorder

	setMu  sync.Mutex // Serialises SetDevices
	logger Logger
	now    func() time.Time
}

// NewRegistry creates a registry backed by db.
//
// Parameters:
//   - db: Open document store holding the side table and rooms index
//   - history: Optional recorder for status transitions (nil disables it)
//
// Returns:
//   - *Registry: Registry with no live devices and the side table loaded
//   - error: If the store buckets cannot be loaded
func NewRegistry(db *store.DB, history StatusRecorder) (*Registry, error) {
	stored, err := store.NewCollection[StoredDevice](db, bucketDevices)
	if err != nil {
		return nil, fmt.Errorf("loading device side table: %w", err)
	}
	rooms, err := store.NewCollection[roomInfo](db, bucketRooms)
	if err != nil {
		return nil, fmt.Errorf("loading rooms: %w", err)
	}

	return &Registry{
		devices: reactive.New(map[string]*Device{}, reactive.WithEqual(sameDevices)),
		stored:  stored,
		rooms:   rooms,
		history: history,
		logger:  noopLogger{},
		now:     time.Now,
	}, nil
}

// sameDevices compares device maps by identity. Devices hold live state and
// must never be compared structurally.
func sameDevices(a, b map[string]*Device) bool {
	if len(a) != len(b) {
		return false
	}
	for id, d := range a {
		if b[id] != d {
			return false
		}
	}
	return true
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Devices exposes the live device map. Subscribers must not modify the map.
func (r *Registry) Devices() reactive.Cell[map[string]*Device] {
	return r.devices
}

// Get returns the live device with id.
func (r *Registry) Get(id string) (*Device, bool) {
	d, ok := r.devices.Current()[id]
	return d, ok
}

// List returns the live devices ordered by id.
func (r *Registry) List() []*Device {
	all := r.devices.Current()
	out := make([]*Device, 0, len(all))
	for _, d := range all {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// SetDevices replaces every live device from source with devs in a single
// map update. Devices from other sources are untouched. Devices from source
// that are no longer present are closed.
//
// The side table marks every device in devs online with LastSeen now and
// every other known device from source offline. Persistence failures are
// logged; the live map is updated regardless.
//
// Parameters:
//   - ctx: Context for the status history writes
//   - devs: The complete current device list for source
//   - source: Integration the list belongs to
func (r *Registry) SetDevices(ctx context.Context, devs []*Device, source Source) {
	r.setMu.Lock()
	defer r.setMu.Unlock()

	old := r.devices.Current()
	next := make(map[string]*Device, len(old)+len(devs))
	for id, d := range old {
		if d.Source() != source {
			next[id] = d
		}
	}
	present := make(map[string]bool, len(devs))
	for _, d := range devs {
		if d.Source() != source {
			r.logger.Warn("device source mismatch", "device_id", d.ID(), "device_source", d.Source(), "source", source)
		}
		next[d.ID()] = d
		present[d.ID()] = true
		d.SetStatus(StatusOnline)
	}

	r.devices.Set(next)

	for id, d := range old {
		if d.Source() == source && next[id] != d {
			if err := d.Close(); err != nil {
				r.logger.Error("closing removed device", "device_id", id, "error", err)
			}
		}
	}

	r.updateStatuses(ctx, present, source)
}

type statusChange struct {
	id     string
	status Status
}

func (r *Registry) updateStatuses(ctx context.Context, present map[string]bool, source Source) {
	now := r.now().UTC()
	var changes []statusChange

	err := r.stored.Update(func(m map[string]StoredDevice) map[string]StoredDevice {
		for id := range present {
			rec, ok := m[id]
			if !ok || rec.Status != StatusOnline {
				changes = append(changes, statusChange{id: id, status: StatusOnline})
			}
			rec.ID = id
			rec.Source = source
			rec.Status = StatusOnline
			rec.LastSeen = now
			m[id] = rec
		}
		for id, rec := range m {
			if rec.Source != source || present[id] || rec.Status == StatusOffline {
				continue
			}
			rec.Status = StatusOffline
			m[id] = rec
			changes = append(changes, statusChange{id: id, status: StatusOffline})
		}
		return m
	})
	if err != nil {
		r.logger.Error("persisting device statuses", "source", source, "error", err)
		return
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].id < changes[j].id })
	for _, c := range changes {
		r.logger.Info("device status changed", "device_id", c.id, "status", c.status, "source", source)
		if r.history == nil {
			continue
		}
		if err := r.history.RecordStatusChange(ctx, c.id, c.status, source); err != nil {
			r.logger.Error("recording device status", "device_id", c.id, "error", err)
		}
	}
}

// StoredDevices returns a copy of the side table keyed by device id.
func (r *Registry) StoredDevices() map[string]StoredDevice {
	return r.stored.Current()
}

// StoredDevice returns the side-table record for id.
func (r *Registry) StoredDevice(id string) (StoredDevice, bool) {
	return r.stored.Get(id)
}

// DisplayName returns the user-assigned name, falling back to the vendor
// name and then the id.
func (r *Registry) DisplayName(id string) string {
	if rec, ok := r.stored.Get(id); ok && rec.Name != "" {
		return rec.Name
	}
	if d, ok := r.Get(id); ok && d.Name() != "" {
		return d.Name()
	}
	return id
}

// UpdateDeviceName sets the display name of a known device. An empty name
// clears it.
//
// Returns:
//   - bool: false if the device has never been seen
//   - error: If the side table cannot be written
func (r *Registry) UpdateDeviceName(id, name string) (bool, error) {
	if _, ok := r.stored.Get(id); !ok {
		return false, nil
	}
	err := r.stored.Update(func(m map[string]StoredDevice) map[string]StoredDevice {
		rec := m[id]
		rec.Name = strings.TrimSpace(name)
		m[id] = rec
		return m
	})
	if err != nil {
		return false, fmt.Errorf("updating device name: %w", err)
	}
	return true, nil
}

// UpdateDeviceRoom places a known device in room, optionally setting the
// room's icon. An empty room clears the assignment; rooms no device
// references any more are dropped from the rooms index.
//
// Returns:
//   - bool: false if the device has never been seen
//   - error: If the side table or rooms index cannot be written
func (r *Registry) UpdateDeviceRoom(id, room, icon string) (bool, error) {
	if _, ok := r.stored.Get(id); !ok {
		return false, nil
	}
	room = strings.TrimSpace(room)

	err := r.stored.Update(func(m map[string]StoredDevice) map[string]StoredDevice {
		rec := m[id]
		rec.Room = room
		m[id] = rec
		return m
	})
	if err != nil {
		return false, fmt.Errorf("updating device room: %w", err)
	}

	referenced := make(map[string]bool)
	for _, rec := range r.stored.Current() {
		if rec.Room != "" {
			referenced[rec.Room] = true
		}
	}

	err = r.rooms.Update(func(m map[string]roomInfo) map[string]roomInfo {
		if room != "" {
			info := m[room]
			if icon != "" {
				info.Icon = icon
			}
			m[room] = info
		}
		for name := range m {
			if !referenced[name] {
				delete(m, name)
			}
		}
		return m
	})
	if err != nil {
		return true, fmt.Errorf("updating rooms index: %w", err)
	}
	return true, nil
}

// Rooms returns the rooms currently referenced by at least one device,
// ordered by name, each with its deterministic colour and stored icon.
func (r *Registry) Rooms() []Room {
	seen := make(map[string]bool)
	var names []string
	for _, rec := range r.stored.Current() {
		if rec.Room != "" && !seen[rec.Room] {
			seen[rec.Room] = true
			names = append(names, rec.Room)
		}
	}
	slices.Sort(names)

	rooms := make([]Room, 0, len(names))
	for _, name := range names {
		info, _ := r.rooms.Get(name)
		rooms = append(rooms, Room{Name: name, Color: PastelColor(name), Icon: info.Icon})
	}
	return rooms
}

// DevicesInRoom returns the live devices assigned to room, ordered by id.
func (r *Registry) DevicesInRoom(room string) []*Device {
	var out []*Device
	for _, d := range r.List() {
		if rec, ok := r.stored.Get(d.ID()); ok && rec.Room == room {
			out = append(out, d)
		}
	}
	return out
}

// Close closes every live device and empties the map.
func (r *Registry) Close() error {
	r.setMu.Lock()
	defer r.setMu.Unlock()

	old := r.devices.Current()
	r.devices.Set(map[string]*Device{})

	var firstErr error
	for id, d := range old {
		if err := d.Close(); err != nil {
			r.logger.Error("closing device", "device_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
