package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// DeviceSource is the interface the engine needs from the device registry.
type DeviceSource interface {
	// Get returns the live device with id.
	Get(id string) (*device.Device, bool)
}

// GroupSource resolves group-targeted actions.
type GroupSource interface {
	Get(id string) (device.Group, bool)
}

// PaletteApplier resolves and applies palette actions.
type PaletteApplier interface {
	Get(id string) (device.Palette, bool)
	Apply(ctx context.Context, devices []*device.Device, pal device.Palette) bool
}

// PresenceSource answers host-home and anyone-home conditions. known is
// false until presence has been reported.
type PresenceSource interface {
	HostHome(hostID string) (home, known bool)
	AnyoneHome() (home, known bool)
}

// Notifier delivers notification actions.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// RoomTemperature applies room-temperature actions.
type RoomTemperature interface {
	SetRoomTarget(ctx context.Context, room string, celsius float64) error
}

// MQTTClient is the interface for publishing scene events.
type MQTTClient interface {
	// Publish sends a message to the specified MQTT topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ExecutionMetrics records scene runs to a time-series store.
type ExecutionMetrics interface {
	WriteSceneExecution(sceneID, triggerType string, success bool, duration time.Duration)
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// Options carries the engine's collaborators. Only Devices is required;
// actions and conditions that need a missing collaborator fail closed.
type Options struct {
	Devices    DeviceSource
	Groups     GroupSource
	Palettes   PaletteApplier
	Presence   PresenceSource
	Variables  *Variables
	Notifier   Notifier
	Rooms      RoomTemperature
	Executions ExecutionRepository
	Metrics    ExecutionMetrics
	MQTT       MQTTClient
	Hub        WSHub
	HTTPClient *http.Client
	Logger     Logger

	// RampStep is the interval between ramp writes (default 5s).
	RampStep time.Duration

	// CodeTimeout bounds custom-code conditions (default 2s).
	CodeTimeout time.Duration
}

// Engine matches triggers against scenes, evaluates their conditions and
// runs their actions.
//
// Thread Safety: all public methods are safe for concurrent use.
type Engine struct {
	scenes      *Registry
	devices     DeviceSource
	groups      GroupSource
	palettes    PaletteApplier
	presence    PresenceSource
	variables   *Variables
	notifier    Notifier
	rooms       RoomTemperature
	repo        ExecutionRepository
	metrics     ExecutionMetrics
	mqtt        MQTTClient
	hub         WSHub
	httpClient  *http.Client
	ramps       *rampManager
	codeTimeout time.Duration
	logger      Logger
	now         func() time.Time
}

// maxSceneExecutionTime is the hard limit for a single scene run. Ramps
// started by a run continue in the background past it.
const maxSceneExecutionTime = 60 * time.Second

// defaultHTTPTimeout bounds http-request actions when no client is given.
const defaultHTTPTimeout = 10 * time.Second

// NewEngine creates a new scene engine.
//
// Parameters:
//   - scenes: Scene registry holding the definitions
//   - opts: Collaborators; see Options
func NewEngine(scenes *Registry, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Engine{
		scenes:      scenes,
		devices:     opts.Devices,
		groups:      opts.Groups,
		palettes:    opts.Palettes,
		presence:    opts.Presence,
		variables:   opts.Variables,
		notifier:    opts.Notifier,
		rooms:       opts.Rooms,
		repo:        opts.Executions,
		metrics:     opts.Metrics,
		mqtt:        opts.MQTT,
		hub:         opts.Hub,
		httpClient:  client,
		ramps:       newRampManager(opts.RampStep, logger),
		codeTimeout: opts.CodeTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Scenes returns the scene registry.
func (e *Engine) Scenes() *Registry {
	return e.scenes
}

// Variables returns the variable store, nil if none was configured.
func (e *Engine) Variables() *Variables {
	return e.variables
}

// OnTrigger runs every scene with a trigger entry matching trig.
//
// Scenes are visited in creation order and their entries in declaration
// order. The first entry that matches and whose conditions pass runs the
// scene; the scene's remaining entries are skipped.
//
// Parameters:
//   - ctx: Context for condition evaluation and actions
//   - trig: The event that happened
//   - skipConditions: Run matching scenes without evaluating conditions
//
// Returns:
//   - int: Number of scenes run
func (e *Engine) OnTrigger(ctx context.Context, trig Trigger, skipConditions bool) int {
	fired := 0
	for _, scene := range e.scenes.ListScenes() {
		for _, entry := range scene.Triggers {
			if !entry.Trigger.Matches(trig) {
				continue
			}
			if !skipConditions && !e.evaluateConditions(ctx, entry.Conditions, false) {
				continue
			}
			e.runScene(ctx, &scene, TriggerInfo{Type: trig.Type, Source: trig.Source()})
			fired++
			break
		}
	}
	if fired > 0 {
		e.logger.Debug("trigger handled", "type", trig.Type, "source", trig.Source(), "scenes", fired)
	}
	return fired
}

// TriggerScene runs the scene with id.
//
// A nil info, or one with Type TriggerManual, is a manual run: only
// conditions flagged CheckOnManual are checked, across all of the scene's
// trigger entries, and any failure skips the run. A skipped manual run is
// still recorded as a failed execution.
//
// Returns:
//   - bool: true only if the scene exists, ran, and every action succeeded
func (e *Engine) TriggerScene(ctx context.Context, id string, info *TriggerInfo) bool {
	scene, ok := e.scenes.GetScene(id)
	if !ok {
		e.logger.Warn("scene not found", "scene_id", id)
		return false
	}

	if info == nil || info.Type == TriggerManual {
		if info == nil {
			info = &TriggerInfo{Type: TriggerManual}
		}
		for _, entry := range scene.Triggers {
			if !e.evaluateConditions(ctx, entry.Conditions, true) {
				e.logger.Info("manual scene run blocked by condition", "scene_id", id)
				e.record(ctx, scene, *info, e.now(), false)
				return false
			}
		}
	}

	return e.runScene(ctx, scene, *info)
}

// RunEntry runs the scene with id on behalf of its trigger entry at index,
// if that entry's conditions pass. Schedulers use it to fire one scene's
// interval or location entry without matching other scenes.
//
// Returns:
//   - bool: true if the entry's conditions passed and the scene ran
func (e *Engine) RunEntry(ctx context.Context, id string, index int) bool {
	scene, ok := e.scenes.GetScene(id)
	if !ok || index < 0 || index >= len(scene.Triggers) {
		return false
	}
	entry := scene.Triggers[index]
	if !e.evaluateConditions(ctx, entry.Conditions, false) {
		return false
	}
	e.runScene(ctx, scene, TriggerInfo{Type: entry.Trigger.Type, Source: entry.Trigger.Source()})
	return true
}

// runScene executes the scene's actions and records the outcome.
func (e *Engine) runScene(ctx context.Context, scene *Scene, info TriggerInfo) bool {
	// Apply execution timeout to prevent unbounded goroutine accumulation.
	ctx, cancel := context.WithTimeout(ctx, maxSceneExecutionTime)
	defer cancel()

	started := e.now()
	e.logger.Info("scene run started",
		"scene_id", scene.ID,
		"title", scene.Title,
		"trigger_type", info.Type,
		"trigger_source", info.Source,
		"actions", len(scene.Actions),
	)

	success := e.executeActions(ctx, scene)
	duration := e.record(ctx, scene, info, started, success)
	if success {
		e.logger.Info("scene run complete", "scene_id", scene.ID, "duration_ms", duration.Milliseconds())
	} else {
		e.logger.Warn("scene run failed", "scene_id", scene.ID, "duration_ms", duration.Milliseconds())
	}
	return success
}

// record stores, measures and publishes one run that began at started.
// It returns the run's duration.
func (e *Engine) record(ctx context.Context, scene *Scene, info TriggerInfo, started time.Time, success bool) time.Duration {
	exec := &Execution{
		ID:            GenerateID(),
		SceneID:       scene.ID,
		SceneTitle:    scene.Title,
		Timestamp:     started.UTC(),
		TriggerType:   info.Type,
		TriggerSource: info.Source,
		Success:       success,
	}
	if e.repo != nil {
		// Record with a fresh context so a timed-out run is still logged.
		if err := e.repo.CreateExecution(context.WithoutCancel(ctx), exec); err != nil {
			e.logger.Error("failed to record scene execution", "scene_id", scene.ID, "error", err)
		}
	}

	duration := e.now().Sub(started)
	if e.metrics != nil {
		e.metrics.WriteSceneExecution(scene.ID, string(info.Type), success, duration)
	}
	e.publishExecution(exec)
	return duration
}

// publishExecution announces a run over MQTT and WebSocket. Both are best
// effort.
func (e *Engine) publishExecution(exec *Execution) {
	if e.mqtt != nil {
		payload, err := json.Marshal(exec)
		if err != nil {
			e.logger.Error("marshalling scene execution", "error", err)
		} else if err := e.mqtt.Publish(SceneExecutedTopic(exec.SceneID), payload, 1, false); err != nil {
			e.logger.Warn("publishing scene execution", "scene_id", exec.SceneID, "error", err)
		}
	}
	if e.hub != nil {
		e.hub.Broadcast("scene.executed", exec)
	}
}

// SceneExecutedTopic is the MQTT topic a scene's runs are published on.
func SceneExecutedTopic(sceneID string) string {
	return "graylogic/core/scene/" + sceneID + "/executed"
}

// ListExecutions returns recent runs, newest first. An empty sceneID lists
// runs of every scene.
func (e *Engine) ListExecutions(ctx context.Context, sceneID string, limit int) ([]Execution, error) {
	if e.repo == nil {
		return []Execution{}, nil
	}
	return e.repo.ListExecutions(ctx, sceneID, limit)
}

// RampActive reports whether a gradual level change is running on the
// device.
func (e *Engine) RampActive(deviceID string) bool {
	return e.ramps.Active(deviceID)
}

// StopRamp cancels any gradual level change running on the device.
func (e *Engine) StopRamp(deviceID string) {
	e.ramps.Stop(deviceID)
}

// Close cancels every running ramp.
func (e *Engine) Close() {
	e.ramps.StopAll()
}
