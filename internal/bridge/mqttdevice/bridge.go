package mqttdevice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/cluster/memory"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// commandQoS is the QoS commands are published with.
const commandQoS = 1

// Logger defines the logging interface used by the Bridge.
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

// Client is the MQTT surface the Bridge needs.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// connectionState is implemented by clients that expose broker
// reachability. Bridged devices are offline while it is false.
type connectionState interface {
	State() reactive.Cell[bool]
}

// Registry receives the bridged device list.
type Registry interface {
	SetDevices(ctx context.Context, devs []*device.Device, source device.Source)
}

// DeviceID returns the registry id of the bridged device declared as id.
func DeviceID(id string) string {
	return string(device.SourceMQTT) + ":" + id
}

// Bridge maps declared devices onto MQTT topics.
//
// Thread Safety: all public methods are safe for concurrent use.
type Bridge struct {
	client   Client
	registry Registry
	logger   Logger

	mu        sync.RWMutex
	bindings  map[string]map[string]binding // declared id -> topic key
	devices   []*device.Device
	started   bool
	connected bool
	unwatch   func()
}

// New creates a bridge. Call Start to build and register its devices.
func New(client Client, registry Registry, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{client: client, registry: registry, logger: logger, connected: true}
}

// Start builds the devices in cfg, subscribes to their state topics and
// hands them to the registry.
func (b *Bridge) Start(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := b.client.Subscribe(mqtt.Topics{}.AllBridgeStates(), commandQoS, b.handleState); err != nil {
		return fmt.Errorf("subscribing to bridge states: %w", err)
	}
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()

	if sc, ok := b.client.(connectionState); ok {
		unwatch := sc.State().Subscribe(b.handleConnection)
		b.mu.Lock()
		b.unwatch = unwatch
		b.mu.Unlock()
	}
	return b.Reload(ctx, cfg)
}

// Reload replaces every bridged device with those declared in cfg. The
// registry closes the previous instances.
func (b *Bridge) Reload(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return ErrNotStarted
	}
	devs, bindings := b.build(cfg)
	b.bindings = bindings
	b.devices = devs
	if !b.connected {
		for _, d := range devs {
			d.SetStatus(device.StatusOffline)
		}
	}
	b.mu.Unlock()

	b.registry.SetDevices(ctx, devs, device.SourceMQTT)
	b.logger.Info("mqtt devices registered", "count", len(devs))
	return nil
}

// Stop unsubscribes and removes every bridged device from the registry.
func (b *Bridge) Stop(ctx context.Context) {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	b.bindings = nil
	b.devices = nil
	unwatch := b.unwatch
	b.unwatch = nil
	b.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}

	if err := b.client.Unsubscribe(mqtt.Topics{}.AllBridgeStates()); err != nil {
		b.logger.Warn("unsubscribing from bridge states", "error", err)
	}
	b.registry.SetDevices(ctx, nil, device.SourceMQTT)
}

// handleConnection mirrors broker reachability onto every bridged device.
func (b *Bridge) handleConnection(up bool, initial bool) {
	b.mu.Lock()
	b.connected = up
	devs := b.devices
	b.mu.Unlock()

	status := device.StatusOnline
	if !up {
		status = device.StatusOffline
	}
	for _, d := range devs {
		d.SetStatus(status)
	}
	if !initial {
		b.logger.Info("mqtt devices reachability changed", "status", status, "count", len(devs))
	}
}

func (b *Bridge) build(cfg *Config) ([]*device.Device, map[string]map[string]binding) {
	devs := make([]*device.Device, 0, len(cfg.Devices))
	all := make(map[string]map[string]binding, len(cfg.Devices))

	for _, dc := range cfg.Devices {
		byKey := make(map[string]binding, len(dc.Clusters))
		clusters := make([]cluster.Cluster, 0, len(dc.Clusters))
		for _, cc := range dc.Clusters {
			bd := builders[cc.Type](cc)
			bd.cluster.SetHandler(b.commandHandler(dc.ID, bd.key))
			byKey[bd.key] = bd
			clusters = append(clusters, bd.cluster)
		}

		name := dc.Name
		if name == "" {
			name = dc.ID
		}
		devs = append(devs, device.New(device.Info{
			ID:            DeviceID(dc.ID),
			Source:        device.SourceMQTT,
			Name:          name,
			ManagementURL: dc.ManagementURL,
		}, device.NewEndpoint(clusters)))
		all[dc.ID] = byKey
	}
	return devs, all
}

// commandHandler publishes a cluster command. Local state only changes
// once the publish has succeeded.
func (b *Bridge) commandHandler(id, key string) memory.Handler {
	topic := mqtt.Topics{}.BridgeCommand(id, key)
	return func(ctx context.Context, cmd memory.Command) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("encoding command: %w", err)
		}
		if err := b.client.Publish(topic, payload, commandQoS, false); err != nil {
			return fmt.Errorf("publishing %s command to %s: %w", cmd.Method, id, err)
		}
		b.logger.Debug("mqtt device command", "device_id", id, "cluster", key, "method", cmd.Method)
		return nil
	}
}

func (b *Bridge) handleState(topic string, payload []byte) error {
	id, _ := mqtt.Segment(topic, -2)
	key, _ := mqtt.Segment(topic, -1)

	b.mu.RLock()
	byKey, ok := b.bindings[id]
	var bd binding
	if ok {
		bd, ok = byKey[key]
	}
	b.mu.RUnlock()

	if byKey == nil {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownCluster, id, key)
	}
	if err := bd.apply(payload); err != nil {
		return fmt.Errorf("device %s cluster %s: %w", id, key, err)
	}
	return nil
}
