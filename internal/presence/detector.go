package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// DefaultNobodyHomeTimeout is how long the house must stay empty before
// nobody-home-timeout fires.
const DefaultNobodyHomeTimeout = 15 * time.Minute

// State is a host's reported presence.
type State string

// Presence states.
const (
	StateUnknown State = ""
	StateHome    State = "home"
	StateAway    State = "away"
)

// ParseState converts a report payload to a State.
func ParseState(s string) (State, error) {
	switch st := State(strings.ToLower(strings.TrimSpace(s))); st {
	case StateHome, StateAway:
		return st, nil
	default:
		return StateUnknown, fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
}

// Logger defines the logging interface used by the Detector.
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

// TriggerSink receives presence triggers.
type TriggerSink interface {
	OnTrigger(ctx context.Context, trig automation.Trigger, manual bool) int
}

// Subscriber is the MQTT subscription surface the Detector needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// ChannelPresence is the WebSocket channel host changes are broadcast on.
const ChannelPresence = "presence.changed"

// Options configures a Detector.
type Options struct {
	// Hosts are reported as unknown by Hosts until they first report.
	Hosts []string

	Sink   TriggerSink
	Hub    WSHub
	Logger Logger

	// NobodyHomeTimeout defaults to DefaultNobodyHomeTimeout.
	NobodyHomeTimeout time.Duration

	Now func() time.Time
}

type hostState struct {
	state State
	since time.Time
}

// HostStatus is one host's presence as exposed over the API.
type HostStatus struct {
	HostID string    `json:"hostId"`
	State  State     `json:"state"`
	Since  time.Time `json:"since,omitzero"`
}

// Detector holds per-host presence state.
//
// Thread Safety: all public methods are safe for concurrent use.
type Detector struct {
	sink    TriggerSink
	hub     WSHub
	logger  Logger
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	hosts    map[string]hostState
	emptyTmr *time.Timer
	sub      Subscriber
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// NewDetector creates a detector with every configured host unknown.
func NewDetector(opts Options) *Detector {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.NobodyHomeTimeout <= 0 {
		opts.NobodyHomeTimeout = DefaultNobodyHomeTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Detector{
		sink:    opts.Sink,
		hub:     opts.Hub,
		logger:  opts.Logger,
		timeout: opts.NobodyHomeTimeout,
		now:     opts.Now,
		hosts:   make(map[string]hostState, len(opts.Hosts)),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, h := range opts.Hosts {
		d.hosts[h] = hostState{}
	}
	return d
}

// Start subscribes to every host's presence topic.
func (d *Detector) Start(sub Subscriber) error {
	if err := sub.Subscribe(mqtt.Topics{}.AllPresence(), 1, d.handleMessage); err != nil {
		return fmt.Errorf("subscribing to presence: %w", err)
	}
	d.mu.Lock()
	d.sub = sub
	d.mu.Unlock()
	return nil
}

// Close unsubscribes, stops the empty-house timer and waits for triggers
// already handed to the sink.
func (d *Detector) Close() {
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	if d.emptyTmr != nil {
		d.emptyTmr.Stop()
		d.emptyTmr = nil
	}
	d.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(mqtt.Topics{}.AllPresence()); err != nil {
			d.logger.Warn("unsubscribing from presence", "error", err)
		}
	}
	d.cancel()
	d.inflight.Wait()
}

// handleMessage accepts a bare "home"/"away" payload or {"state": "..."}.
func (d *Detector) handleMessage(topic string, payload []byte) error {
	host, _ := mqtt.Segment(topic, -1)

	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var msg struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decoding presence report for %s: %w", host, err)
		}
		raw = msg.State
	}

	st, err := ParseState(raw)
	if err != nil {
		return err
	}
	return d.Report(host, st)
}

// Report records state for hostID and fires the resulting triggers.
func (d *Detector) Report(hostID string, state State) error {
	if hostID == "" {
		return ErrInvalidHost
	}
	if state != StateHome && state != StateAway {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	d.mu.Lock()
	prev := d.hosts[hostID]
	if prev.state == state {
		d.mu.Unlock()
		return nil
	}
	beforeHome, beforeKnown := d.anyoneHomeLocked()
	d.hosts[hostID] = hostState{state: state, since: d.now()}
	afterHome, _ := d.anyoneHomeLocked()

	var fire []automation.Trigger
	if prev.state != StateUnknown {
		if state == StateHome {
			fire = append(fire, automation.Trigger{Type: automation.TriggerHostArrival, HostID: hostID})
		} else {
			fire = append(fire, automation.Trigger{Type: automation.TriggerHostDeparture, HostID: hostID})
		}
	}
	if beforeKnown && beforeHome != afterHome {
		if afterHome {
			fire = append(fire, automation.Trigger{Type: automation.TriggerAnybodyHome})
		} else {
			fire = append(fire, automation.Trigger{Type: automation.TriggerNobodyHome})
		}
	}
	d.updateEmptyTimerLocked(afterHome)
	d.mu.Unlock()

	d.logger.Info("host presence changed", "host_id", hostID, "from", prev.state, "to", state)
	if d.hub != nil {
		d.hub.Broadcast(ChannelPresence, HostStatus{HostID: hostID, State: state, Since: d.now()})
	}
	for _, trig := range fire {
		d.dispatch(trig)
	}
	return nil
}

// updateEmptyTimerLocked arms the nobody-home-timeout timer when the house
// is empty and disarms it when someone is home.
func (d *Detector) updateEmptyTimerLocked(anyoneHome bool) {
	if anyoneHome {
		if d.emptyTmr != nil {
			d.emptyTmr.Stop()
			d.emptyTmr = nil
		}
		return
	}
	if d.emptyTmr != nil {
		return
	}
	var tmr *time.Timer
	tmr = time.AfterFunc(d.timeout, func() {
		d.mu.Lock()
		current := d.emptyTmr == tmr
		if current {
			d.emptyTmr = nil
		}
		d.mu.Unlock()
		if current {
			d.logger.Info("house empty past timeout", "timeout", d.timeout)
			d.dispatch(automation.Trigger{Type: automation.TriggerNobodyHomeTimeout})
		}
	})
	d.emptyTmr = tmr
}

func (d *Detector) dispatch(trig automation.Trigger) {
	if d.sink == nil || d.ctx.Err() != nil {
		return
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		n := d.sink.OnTrigger(d.ctx, trig, false)
		d.logger.Debug("presence trigger dispatched", "type", trig.Type, "host_id", trig.HostID, "scenes", n)
	}()
}

// HostHome implements automation.PresenceSource.
func (d *Detector) HostHome(hostID string) (home, known bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.hosts[hostID].state
	return st == StateHome, st != StateUnknown
}

// AnyoneHome implements automation.PresenceSource. known is false until at
// least one host has reported.
func (d *Detector) AnyoneHome() (home, known bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.anyoneHomeLocked()
}

func (d *Detector) anyoneHomeLocked() (home, known bool) {
	for _, h := range d.hosts {
		switch h.state {
		case StateHome:
			return true, true
		case StateAway:
			known = true
		}
	}
	return false, known
}

// Hosts returns every configured or reporting host ordered by id.
func (d *Detector) Hosts() []HostStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]HostStatus, 0, len(d.hosts))
	for id, h := range d.hosts {
		out = append(out, HostStatus{HostID: id, State: h.state, Since: h.since})
	}
	slices.SortFunc(out, func(a, b HostStatus) int { return strings.Compare(a.HostID, b.HostID) })
	return out
}
