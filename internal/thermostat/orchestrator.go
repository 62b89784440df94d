package thermostat

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// setModeTimeout bounds a single corrective SetMode call.
const setModeTimeout = 10 * time.Second

// Logger defines the logging interface used by the Orchestrator.
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

// DeviceSource exposes the live device map.
type DeviceSource interface {
	Devices() reactive.Cell[map[string]*device.Device]
}

// Config names the devices taking part in orchestration. Only thermostat
// clusters whose role matches the list they are named in are used.
type Config struct {
	MasterDeviceIDs []string `json:"masterDeviceIds" yaml:"master_device_ids"`
	SlaveDeviceIDs  []string `json:"slaveDeviceIds" yaml:"slave_device_ids"`
}

type member struct {
	deviceID string
	cluster  cluster.Thermostat

	// needsHeat derives from the mode whether the zone asks for heat.
	needsHeat reactive.Cell[bool]
}

// Orchestrator enforces that masters heat if and only if a slave needs
// heat.
//
// Corrections run on a single worker goroutine so that a master's own mode
// change, which re-triggers evaluation, never re-enters orchestration.
type Orchestrator struct {
	devices DeviceSource
	logger  Logger

	mu      sync.Mutex
	cfg     Config
	masters []member
	slaves  []member
	unsubs  []func()

	kick      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	unsubMap  func()
	closeOnce sync.Once
}

// New creates an orchestrator for cfg. Call Start to begin watching.
func New(devices DeviceSource, cfg Config, logger Logger) *Orchestrator {
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		devices: devices,
		logger:  logger,
		cfg:     cloneConfig(cfg),
		kick:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start subscribes to the device map and launches the correction worker.
func (o *Orchestrator) Start() {
	go o.worker()
	o.unsubMap = o.devices.Devices().Subscribe(func(devs map[string]*device.Device, _ bool) {
		o.rebuild(devs)
	})
}

// Close stops watching and waits for an in-flight correction to finish.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		if o.unsubMap == nil {
			o.cancel()
			return
		}
		o.unsubMap()
		o.mu.Lock()
		o.dropSubscriptionsLocked()
		o.mu.Unlock()
		o.cancel()
		<-o.done
	})
}

// UpdateConfig replaces the master and slave lists and re-collects the
// thermostats from the current device map.
func (o *Orchestrator) UpdateConfig(cfg Config) {
	o.mu.Lock()
	o.cfg = cloneConfig(cfg)
	o.mu.Unlock()
	o.rebuild(o.devices.Devices().Current())
}

// Config returns the active configuration.
func (o *Orchestrator) Config() Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneConfig(o.cfg)
}

func (o *Orchestrator) rebuild(devs map[string]*device.Device) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.dropSubscriptionsLocked()
	o.masters = collect(devs, o.cfg.MasterDeviceIDs, cluster.RoleMaster)
	o.slaves = collect(devs, o.cfg.SlaveDeviceIDs, cluster.RoleSlave)

	for _, m := range slices.Concat(o.masters, o.slaves) {
		state := reactive.Combine(m.cluster.Mode(), m.cluster.IsHeating())
		o.unsubs = append(o.unsubs,
			state.Subscribe(func(reactive.Pair[cluster.ThermostatMode, bool], bool) { o.trigger() }),
		)
	}

	o.logger.Info("thermostats collected", "masters", len(o.masters), "slaves", len(o.slaves))
}

func (o *Orchestrator) dropSubscriptionsLocked() {
	for _, u := range o.unsubs {
		u()
	}
	o.unsubs = nil
}

func collect(devs map[string]*device.Device, ids []string, role cluster.ThermostatRole) []member {
	var out []member
	for _, id := range ids {
		d, ok := devs[id]
		if !ok {
			continue
		}
		for _, t := range device.AllClustersOf[cluster.Thermostat](d, cluster.NameThermostat) {
			if t.Role() == role {
				out = append(out, member{
					deviceID:  id,
					cluster:   t,
					needsHeat: reactive.MapSimple(t.Mode(), cluster.ThermostatMode.RequestsHeat),
				})
			}
		}
	}
	return out
}

// trigger schedules an evaluation. Pending requests coalesce.
func (o *Orchestrator) trigger() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) worker() {
	defer close(o.done)
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.kick:
			o.orchestrate(o.ctx)
		}
	}
}

// orchestrate applies the master/slave rule once.
func (o *Orchestrator) orchestrate(ctx context.Context) {
	o.mu.Lock()
	masters := slices.Clone(o.masters)
	slaves := slices.Clone(o.slaves)
	o.mu.Unlock()

	needsHeat := anySlaveNeedsHeat(slaves)
	o.logger.Debug("orchestrating", "any_slave_needs_heat", needsHeat, "masters", len(masters))

	for _, m := range masters {
		current := m.cluster.Mode().Current()
		want := cluster.ModeOff
		if needsHeat {
			if current != cluster.ModeOff {
				continue
			}
			want = cluster.ModeHeat
		} else if current == cluster.ModeOff {
			continue
		}

		o.logger.Info("correcting master thermostat", "device_id", m.deviceID, "from", current, "to", want)
		callCtx, cancel := context.WithTimeout(ctx, setModeTimeout)
		err := m.cluster.SetMode(callCtx, want)
		cancel()
		if err != nil {
			o.logger.Error("setting master thermostat mode", "device_id", m.deviceID, "mode", want, "error", err)
		}
	}
}

func anySlaveNeedsHeat(slaves []member) bool {
	for _, s := range slaves {
		if s.needsHeat.Current() {
			return true
		}
	}
	return false
}

func cloneConfig(c Config) Config {
	return Config{
		MasterDeviceIDs: slices.Clone(c.MasterDeviceIDs),
		SlaveDeviceIDs:  slices.Clone(c.SlaveDeviceIDs),
	}
}
