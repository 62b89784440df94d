package automation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// defaultRampStep is how often a ramp writes a new level.
const defaultRampStep = 5 * time.Second

// ramp is one in-progress gradual level change.
type ramp struct {
	deviceID string
	cancel   context.CancelFunc
	done     chan struct{}

	// selfWrite is set while the ramp itself writes, so its own changes do
	// not look like a manual override.
	selfWrite atomic.Bool
}

// rampManager runs at most one ramp per device.
type rampManager struct {
	mu     sync.Mutex
	active map[string]*ramp
	step   time.Duration
	now    func() time.Time
	logger Logger
}

func newRampManager(step time.Duration, logger Logger) *rampManager {
	if step <= 0 {
		step = defaultRampStep
	}
	return &rampManager{
		active: make(map[string]*ramp),
		step:   step,
		now:    time.Now,
		logger: logger,
	}
}

// Start ramps every LevelControl on d linearly from its current level to
// target over duration. Any ramp already running on d is cancelled first,
// and the device is switched on if it has OnOff clusters.
//
// The ramp stops on completion, on Stop, or as soon as the device's level
// or power state changes from outside the ramp.
//
// Returns false if the device has no LevelControl or could not be switched
// on.
func (m *rampManager) Start(ctx context.Context, d *device.Device, target float64, duration time.Duration) bool {
	levels := device.AllClustersOf[cluster.LevelControl](d, cluster.NameLevelControl)
	if len(levels) == 0 {
		m.logger.Warn("ramp: device has no LevelControl", "device_id", d.ID())
		return false
	}
	// The ramp outlives the scene run that started it.
	rampCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &ramp{deviceID: d.ID(), cancel: cancel, done: make(chan struct{})}
	m.claim(r)

	onOffs := device.AllClustersOf[cluster.OnOff](d, cluster.NameOnOff)

	r.selfWrite.Store(true)
	for _, c := range onOffs {
		if on, ok := c.IsOn().Lookup(); ok && on {
			continue
		}
		if err := c.SetOn(ctx, true); err != nil {
			r.selfWrite.Store(false)
			m.release(r)
			m.logger.Error("ramp: switching device on", "device_id", d.ID(), "error", err)
			return false
		}
	}
	r.selfWrite.Store(false)

	from := levels[0].CurrentLevel().Current()

	var unsubs []func()
	onExternal := func(initial bool) {
		if initial || r.selfWrite.Load() {
			return
		}
		m.logger.Info("ramp cancelled by external change", "device_id", d.ID())
		cancel()
	}
	for _, c := range levels {
		unsubs = append(unsubs, c.CurrentLevel().Subscribe(func(_ float64, initial bool) { onExternal(initial) }))
	}
	for _, c := range onOffs {
		unsubs = append(unsubs, c.IsOn().Subscribe(func(_ bool, initial bool) { onExternal(initial) }))
	}

	m.logger.Info("ramp started", "device_id", d.ID(), "from", from, "to", target, "duration", duration)

	go func() {
		defer close(r.done)
		defer func() {
			for _, u := range unsubs {
				u()
			}
			m.drop(r)
		}()
		m.run(rampCtx, r, levels, from, target, duration)
	}()
	return true
}

func (m *rampManager) run(ctx context.Context, r *ramp, levels []cluster.LevelControl, from, target float64, duration time.Duration) {
	start := m.now()
	ticker := time.NewTicker(m.step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		progress := 1.0
		if duration > 0 {
			progress = min(float64(m.now().Sub(start))/float64(duration), 1)
		}
		level := from + (target-from)*progress

		if ctx.Err() != nil {
			return
		}
		r.selfWrite.Store(true)
		for _, c := range levels {
			if err := c.SetLevel(ctx, level, 0); err != nil {
				m.logger.Error("ramp: setting level", "device_id", r.deviceID, "error", err)
			}
		}
		r.selfWrite.Store(false)

		if progress >= 1 {
			m.logger.Info("ramp complete", "device_id", r.deviceID, "level", level)
			return
		}
	}
}

// claim makes r the device's ramp in one step, then cancels the ramp it
// displaced and waits for it to exit. A concurrent claim for the same
// device cancels r in turn, so at most one ramp ever keeps writing.
func (m *rampManager) claim(r *ramp) {
	m.mu.Lock()
	prev := m.active[r.deviceID]
	m.active[r.deviceID] = r
	m.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}
}

// release abandons a claimed ramp that never started running.
func (m *rampManager) release(r *ramp) {
	r.cancel()
	m.drop(r)
	close(r.done)
}

// drop forgets r unless another ramp has already taken its slot.
func (m *rampManager) drop(r *ramp) {
	m.mu.Lock()
	if m.active[r.deviceID] == r {
		delete(m.active, r.deviceID)
	}
	m.mu.Unlock()
}

// Stop cancels the ramp on deviceID and waits for it to exit.
func (m *rampManager) Stop(deviceID string) {
	m.mu.Lock()
	r := m.active[deviceID]
	delete(m.active, deviceID)
	m.mu.Unlock()

	if r != nil {
		r.cancel()
		<-r.done
	}
}

// Active reports whether a ramp is running on deviceID.
func (m *rampManager) Active(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[deviceID]
	return ok
}

// StopAll cancels every running ramp.
func (m *rampManager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
}
