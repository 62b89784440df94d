package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/store"
)

// Store bucket names.
const (
	bucketTargets = "location_targets"
	bucketDevices = "location_devices"
)

// earthRadiusKm is the mean Earth radius used for haversine distances.
const earthRadiusKm = 6371.0

// lookupTimeout bounds the history read behind WithinRange on a cold cache.
const lookupTimeout = 5 * time.Second

// ChannelLocation is the WebSocket channel position reports are broadcast on.
const ChannelLocation = "location.updated"

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscriber is the MQTT subscription surface the Service needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// Options configures a Service. Store and Repo are required.
type Options struct {
	Store  *store.DB
	Repo   Repository
	Hub    WSHub
	Logger Logger
	Now    func() time.Time
}

// Service owns targets, tracked devices and their positions.
type Service struct {
	repo    Repository
	targets *store.Collection[Target]
	devices *store.Collection[Device]
	hub     WSHub
	logger  Logger
	now     func() time.Time

	mu   sync.Mutex
	last map[string]Update // newest known position per device
	sub  Subscriber
}

// NewService opens the target and device collections.
func NewService(opts Options) (*Service, error) {
	targets, err := store.NewCollection[Target](opts.Store, bucketTargets)
	if err != nil {
		return nil, fmt.Errorf("loading location targets: %w", err)
	}
	devices, err := store.NewCollection[Device](opts.Store, bucketDevices)
	if err != nil {
		return nil, fmt.Errorf("loading location devices: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:    opts.Repo,
		targets: targets,
		devices: devices,
		hub:     opts.Hub,
		logger:  opts.Logger,
		now:     opts.Now,
		last:    make(map[string]Update),
	}, nil
}

// SeedTargets upserts targets, typically those read by LoadTargets.
// Targets created at runtime are kept.
func (s *Service) SeedTargets(targets []Target) error {
	for _, t := range targets {
		if err := ValidateTarget(t); err != nil {
			return fmt.Errorf("target %q: %w", t.ID, err)
		}
	}
	return s.targets.Update(func(old map[string]Target) map[string]Target {
		for _, t := range targets {
			old[t.ID] = t
		}
		return old
	})
}

// Targets returns every target ordered by id.
func (s *Service) Targets() []Target {
	all := s.targets.Current()
	out := make([]Target, 0, len(all))
	for _, t := range all {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Target) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Target returns the target with id.
func (s *Service) Target(id string) (Target, bool) {
	return s.targets.Get(id)
}

// SetTarget creates or replaces a target.
func (s *Service) SetTarget(t Target) error {
	if err := ValidateTarget(t); err != nil {
		return err
	}
	if err := s.targets.Put(t.ID, t); err != nil {
		return fmt.Errorf("storing target %s: %w", t.ID, err)
	}
	s.logger.Info("location target set", "target_id", t.ID, "name", t.Name)
	return nil
}

// DeleteTarget removes the target with id.
func (s *Service) DeleteTarget(id string) error {
	if _, ok := s.targets.Get(id); !ok {
		return ErrTargetNotFound
	}
	if err := s.targets.Delete(id); err != nil {
		return fmt.Errorf("deleting target %s: %w", id, err)
	}
	s.logger.Info("location target deleted", "target_id", id)
	return nil
}

// RenameDevice sets the display name of a tracked device.
func (s *Service) RenameDevice(id, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, ok := s.devices.Get(id); !ok {
		return ErrDeviceNotFound
	}
	return s.devices.Put(id, Device{ID: id, Name: strings.TrimSpace(name)})
}

// Devices returns every tracked device with its last known position,
// ordered by id.
func (s *Service) Devices(ctx context.Context) ([]DeviceStatus, error) {
	all := s.devices.Current()
	out := make([]DeviceStatus, 0, len(all))
	for _, d := range all {
		st := DeviceStatus{Device: d}
		u, err := s.lastPosition(ctx, d.ID)
		switch {
		case err == nil:
			st.LastKnown = &u
		case !errors.Is(err, ErrNoFix):
			return nil, err
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b DeviceStatus) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// History returns up to limit position reports for deviceID, newest first.
func (s *Service) History(ctx context.Context, deviceID string, limit int) ([]Update, error) {
	return s.repo.History(ctx, deviceID, limit)
}

// ProcessUpdate validates and stores one position report, registering
// the device on its first report.
func (s *Service) ProcessUpdate(ctx context.Context, u Update) error {
	if err := ValidateID(u.DeviceID); err != nil {
		return err
	}
	if err := ValidateCoordinates(Coordinates{Latitude: u.Latitude, Longitude: u.Longitude}); err != nil {
		return err
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = s.now()
	}

	if _, ok := s.devices.Get(u.DeviceID); !ok {
		if err := s.devices.Put(u.DeviceID, Device{ID: u.DeviceID, Name: u.DeviceID}); err != nil {
			return fmt.Errorf("registering location device %s: %w", u.DeviceID, err)
		}
		s.logger.Info("location device registered", "device_id", u.DeviceID)
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return err
	}

	s.mu.Lock()
	if prev, ok := s.last[u.DeviceID]; !ok || !u.Timestamp.Before(prev.Timestamp) {
		s.last[u.DeviceID] = u
	}
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Broadcast(ChannelLocation, u)
	}
	return nil
}

// locationMessage is the MQTT report payload.
type locationMessage struct {
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Accuracy  *float64 `json:"accuracy"`
	Timestamp *int64   `json:"timestamp"` // Unix milliseconds
}

// Start subscribes to every device's location topic.
func (s *Service) Start(sub Subscriber) error {
	if err := sub.Subscribe(mqtt.Topics{}.AllLocations(), 1, s.handleMessage); err != nil {
		return fmt.Errorf("subscribing to locations: %w", err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Close unsubscribes from location reports.
func (s *Service) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(mqtt.Topics{}.AllLocations()); err != nil {
		s.logger.Warn("unsubscribing from locations", "error", err)
	}
}

func (s *Service) handleMessage(topic string, payload []byte) error {
	deviceID, _ := mqtt.Segment(topic, -1)

	var msg locationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding location for %s: %w", deviceID, err)
	}
	if msg.Lat == nil || msg.Lon == nil {
		return fmt.Errorf("%w: lat and lon are required", ErrInvalidCoordinates)
	}

	u := Update{DeviceID: deviceID, Latitude: *msg.Lat, Longitude: *msg.Lon, Accuracy: msg.Accuracy}
	if msg.Timestamp != nil {
		u.Timestamp = time.UnixMilli(*msg.Timestamp).UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	return s.ProcessUpdate(ctx, u)
}

// WithinRange reports whether deviceID's last position lies within
// rangeKm of targetID. It returns ErrTargetNotFound or ErrNoFix when the
// answer is unknown.
func (s *Service) WithinRange(deviceID, targetID string, rangeKm float64) (bool, error) {
	target, ok := s.targets.Get(targetID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	u, err := s.lastPosition(ctx, deviceID)
	if err != nil {
		return false, err
	}

	d := Distance(Coordinates{Latitude: u.Latitude, Longitude: u.Longitude}, target.Coordinates)
	return d <= rangeKm, nil
}

// lastPosition serves from the in-memory cache, falling back to the
// repository after a restart.
func (s *Service) lastPosition(ctx context.Context, deviceID string) (Update, error) {
	s.mu.Lock()
	u, ok := s.last[deviceID]
	s.mu.Unlock()
	if ok {
		return u, nil
	}

	stored, err := s.repo.Last(ctx, deviceID)
	if err != nil {
		return Update{}, err
	}
	s.mu.Lock()
	if _, ok := s.last[deviceID]; !ok {
		s.last[deviceID] = *stored
	}
	s.mu.Unlock()
	return *stored, nil
}

// Distance returns the great-circle distance between a and b in kilometres.
func Distance(a, b Coordinates) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(b.Latitude - a.Latitude)
	dLon := rad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Latitude))*math.Cos(rad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
