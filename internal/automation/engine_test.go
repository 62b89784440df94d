package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/cluster/memory"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/store"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// mockDevices is a fixed set of live devices.
type mockDevices struct {
	mu      sync.RWMutex
	devices map[string]*device.Device
}

func newMockDevices(devs ...*device.Device) *mockDevices {
	m := &mockDevices{devices: make(map[string]*device.Device)}
	for _, d := range devs {
		m.devices[d.ID()] = d
	}
	return m
}

func (m *mockDevices) Get(id string) (*device.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	return d, ok
}

// mockPresence answers presence conditions from fixed maps.
type mockPresence struct {
	hosts  map[string]bool
	anyone *bool
}

func (m *mockPresence) HostHome(hostID string) (bool, bool) {
	home, ok := m.hosts[hostID]
	return home, ok
}

func (m *mockPresence) AnyoneHome() (bool, bool) {
	if m.anyone == nil {
		return false, false
	}
	return *m.anyone, true
}

// mockNotifier captures notifications.
type mockNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *mockNotifier) Send(_ context.Context, title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, title+": "+body)
	return nil
}

// mockRooms captures room-temperature requests.
type mockRooms struct {
	mu      sync.Mutex
	targets map[string]float64
}

func (m *mockRooms) SetRoomTarget(_ context.Context, room string, celsius float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.targets == nil {
		m.targets = make(map[string]float64)
	}
	m.targets[room] = celsius
	return nil
}

// mockRepository keeps executions in memory.
type mockRepository struct {
	mu         sync.Mutex
	executions []Execution
}

func (m *mockRepository) CreateExecution(_ context.Context, exec *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, *exec)
	return nil
}

func (m *mockRepository) GetExecution(_ context.Context, id string) (*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.executions {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, ErrExecutionNotFound
}

func (m *mockRepository) ListExecutions(_ context.Context, sceneID string, _ int) ([]Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Execution
	for i := len(m.executions) - 1; i >= 0; i-- {
		if sceneID == "" || m.executions[i].SceneID == sceneID {
			out = append(out, m.executions[i])
		}
	}
	return out, nil
}

func (m *mockRepository) all() []Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Execution(nil), m.executions...)
}

// mockMQTT captures all published messages.
type mockMQTT struct {
	mu       sync.Mutex
	messages []mqttMessage
}

type mqttMessage struct {
	Topic   string
	Payload map[string]any
	QoS     byte
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var parsed map[string]any
	_ = json.Unmarshal(payload, &parsed)
	m.messages = append(m.messages, mqttMessage{Topic: topic, Payload: parsed, QoS: qos})
	return nil
}

func (m *mockMQTT) getMessages() []mqttMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mqttMessage(nil), m.messages...)
}

// mockMetrics captures scene-run metrics.
type mockMetrics struct {
	mu   sync.Mutex
	runs []string
}

func (m *mockMetrics) WriteSceneExecution(sceneID, triggerType string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, fmt.Sprintf("%s/%s/%t", sceneID, triggerType, success))
}

func (m *mockMetrics) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.runs...)
}

// mockWSHub captures all broadcasts.
type mockWSHub struct {
	mu       sync.Mutex
	channels []string
}

func (m *mockWSHub) Broadcast(channel string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channel)
}

func (m *mockWSHub) getChannels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.channels...)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func openTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type testEnv struct {
	engine   *Engine
	db       *store.DB
	devices  *mockDevices
	groups   *device.Groups
	repo     *mockRepository
	metrics  *mockMetrics
	mqtt     *mockMQTT
	hub      *mockWSHub
	notifier *mockNotifier
	rooms    *mockRooms
	presence *mockPresence
}

func setupEngine(t *testing.T, devs ...*device.Device) *testEnv {
	t.Helper()

	db := openTestStore(t)
	scenes, err := NewRegistry(db)
	require.NoError(t, err)
	vars, err := NewVariables(db)
	require.NoError(t, err)
	groups, err := device.NewGroups(db)
	require.NoError(t, err)

	env := &testEnv{
		db:       db,
		groups:   groups,
		devices:  newMockDevices(devs...),
		repo:     &mockRepository{},
		metrics:  &mockMetrics{},
		mqtt:     &mockMQTT{},
		hub:      &mockWSHub{},
		notifier: &mockNotifier{},
		rooms:    &mockRooms{},
		presence: &mockPresence{hosts: map[string]bool{}},
	}
	env.engine = NewEngine(scenes, Options{
		Devices:    env.devices,
		Groups:     groups,
		Presence:   env.presence,
		Variables:  vars,
		Notifier:   env.notifier,
		Rooms:      env.rooms,
		Executions: env.repo,
		Metrics:    env.metrics,
		MQTT:       env.mqtt,
		Hub:        env.hub,
		RampStep:   5 * time.Millisecond,
	})
	t.Cleanup(env.engine.Close)
	return env
}

func newLight(id string) (*device.Device, *memory.OnOff) {
	on := memory.NewOnOff()
	on.IsOnData.Set(false)
	d := device.New(device.Info{ID: id, Source: device.SourceMQTT},
		device.NewEndpoint([]cluster.Cluster{on}))
	return d, on
}

func onOffAction(deviceID string, on bool) Action {
	return Action{DeviceID: deviceID, Kind: ActionOnOff, OnOff: &OnOffPayload{IsOn: on}}
}

func createScene(t *testing.T, env *testEnv, s Scene) *Scene {
	t.Helper()
	created, err := env.engine.Scenes().CreateScene(s)
	require.NoError(t, err)
	return created
}

func ptr[T any](v T) *T { return &v }

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestEngine_TriggerSceneRoundTrip(t *testing.T) {
	light, on := newLight("mqtt:hall")
	env := setupEngine(t, light)

	scene := createScene(t, env, Scene{Title: "Hall on", Actions: []Action{onOffAction("mqtt:hall", true)}})

	assert.True(t, env.engine.TriggerScene(context.Background(), scene.ID, nil))
	assert.True(t, on.IsOnData.Current())

	execs := env.repo.all()
	require.Len(t, execs, 1)
	assert.Equal(t, scene.ID, execs[0].SceneID)
	assert.Equal(t, "Hall on", execs[0].SceneTitle)
	assert.Equal(t, TriggerManual, execs[0].TriggerType)
	assert.True(t, execs[0].Success)

	msgs := env.mqtt.getMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, SceneExecutedTopic(scene.ID), msgs[0].Topic)
	assert.Equal(t, byte(1), msgs[0].QoS)
	assert.Equal(t, []string{"scene.executed"}, env.hub.getChannels())
	assert.Equal(t, []string{scene.ID + "/manual/true"}, env.metrics.all())

	require.NoError(t, env.engine.Scenes().DeleteScene(scene.ID))
	_, ok := env.engine.Scenes().GetScene(scene.ID)
	assert.False(t, ok)
	assert.False(t, env.engine.TriggerScene(context.Background(), scene.ID, nil))
}

func TestEngine_OnTriggerMatchesAnyEntry(t *testing.T) {
	light, on := newLight("mqtt:hall")
	env := setupEngine(t, light)

	createScene(t, env, Scene{
		Title:   "Hall light",
		Actions: []Action{onOffAction("mqtt:hall", true)},
		Triggers: []TriggerEntry{
			{Trigger: Trigger{Type: TriggerOccupancy, DeviceID: "sensorA"}},
			{Trigger: Trigger{Type: TriggerButtonPress, DeviceID: "deviceB", ButtonIndex: ptr(0)}},
		},
	})
	ctx := context.Background()

	assert.Equal(t, 0, env.engine.OnTrigger(ctx, Trigger{Type: TriggerOccupancy, DeviceID: "sensorC", Occupied: ptr(true)}, false))
	assert.Equal(t, 0, env.engine.OnTrigger(ctx, Trigger{Type: TriggerButtonPress, DeviceID: "deviceB", ButtonIndex: ptr(1)}, false))
	assert.False(t, on.IsOnData.Current())

	assert.Equal(t, 1, env.engine.OnTrigger(ctx, Trigger{Type: TriggerButtonPress, DeviceID: "deviceB", ButtonIndex: ptr(0)}, false))
	assert.True(t, on.IsOnData.Current())

	assert.Equal(t, 1, env.engine.OnTrigger(ctx, Trigger{Type: TriggerOccupancy, DeviceID: "sensorA", Occupied: ptr(true)}, false))

	execs := env.repo.all()
	require.Len(t, execs, 2)
	assert.Equal(t, TriggerButtonPress, execs[0].TriggerType)
	assert.Equal(t, "deviceB", execs[0].TriggerSource)
	assert.Equal(t, TriggerOccupancy, execs[1].TriggerType)
	assert.Equal(t, "sensorA", execs[1].TriggerSource)
}

func TestEngine_RunEntryTargetsOneScene(t *testing.T) {
	hall, hallOn := newLight("mqtt:hall")
	porch, porchOn := newLight("mqtt:porch")
	env := setupEngine(t, hall, porch)
	require.NoError(t, env.engine.Variables().Set("away", true))

	every15 := Trigger{Type: TriggerCron, IntervalMinutes: 15}
	gated := createScene(t, env, Scene{
		Title:   "Hall",
		Actions: []Action{onOffAction("mqtt:hall", true)},
		Triggers: []TriggerEntry{
			{Trigger: Trigger{Type: TriggerWebhook, WebhookName: "x"}},
			{Trigger: every15, Conditions: []Condition{{Type: ConditionVariable, VariableName: "away", ShouldBeTrue: false}}},
		},
	})
	createScene(t, env, Scene{
		Title:    "Porch",
		Actions:  []Action{onOffAction("mqtt:porch", true)},
		Triggers: []TriggerEntry{{Trigger: every15}},
	})
	ctx := context.Background()

	assert.False(t, env.engine.RunEntry(ctx, gated.ID, 1), "condition fails")
	assert.False(t, env.engine.RunEntry(ctx, gated.ID, 7), "no such entry")
	assert.False(t, env.engine.RunEntry(ctx, "scene_missing", 0))

	require.NoError(t, env.engine.Variables().Set("away", false))
	assert.True(t, env.engine.RunEntry(ctx, gated.ID, 1))
	assert.True(t, hallOn.IsOnData.Current())
	assert.False(t, porchOn.IsOnData.Current(), "other scenes with the same interval do not run")

	execs := env.repo.all()
	require.Len(t, execs, 1)
	assert.Equal(t, TriggerCron, execs[0].TriggerType)
	assert.Equal(t, "15m", execs[0].TriggerSource)
}

func TestEngine_OccupancyStateFilter(t *testing.T) {
	light, on := newLight("mqtt:hall")
	env := setupEngine(t, light)
	createScene(t, env, Scene{
		Title:    "Vacant",
		Actions:  []Action{onOffAction("mqtt:hall", true)},
		Triggers: []TriggerEntry{{Trigger: Trigger{Type: TriggerOccupancy, DeviceID: "sensorA", Occupied: ptr(false)}}},
	})
	ctx := context.Background()

	assert.Equal(t, 0, env.engine.OnTrigger(ctx, Trigger{Type: TriggerOccupancy, DeviceID: "sensorA", Occupied: ptr(true)}, false))
	assert.Equal(t, 1, env.engine.OnTrigger(ctx, Trigger{Type: TriggerOccupancy, DeviceID: "sensorA", Occupied: ptr(false)}, false))
	assert.True(t, on.IsOnData.Current())
}

func TestEngine_ConditionsAreANDed(t *testing.T) {
	switchDev, switchOn := newLight("mqtt:switch")
	light, lightOn := newLight("mqtt:light")
	env := setupEngine(t, switchDev, light)

	createScene(t, env, Scene{
		Title:   "Evening",
		Actions: []Action{onOffAction("mqtt:light", true)},
		Triggers: []TriggerEntry{{
			Trigger: Trigger{Type: TriggerWebhook, WebhookName: "evening"},
			Conditions: []Condition{
				{Type: ConditionDeviceOn, DeviceID: "mqtt:switch", ShouldBeOn: true},
				{Type: ConditionTimeWindow, Windows: map[string]TimeWindow{Monday: {Start: "18:00", End: "23:00"}}},
			},
		}},
	})
	ctx := context.Background()
	webhook := Trigger{Type: TriggerWebhook, WebhookName: "evening"}

	// Monday 19:30.
	env.engine.now = func() time.Time { return time.Date(2026, 10, 12, 19, 30, 0, 0, time.Local) }

	assert.Equal(t, 0, env.engine.OnTrigger(ctx, webhook, false), "device off")
	assert.False(t, lightOn.IsOnData.Current())

	switchOn.IsOnData.Set(true)
	env.engine.now = func() time.Time { return time.Date(2026, 10, 12, 12, 0, 0, 0, time.Local) }
	assert.Equal(t, 0, env.engine.OnTrigger(ctx, webhook, false), "outside window")

	env.engine.now = func() time.Time { return time.Date(2026, 10, 12, 19, 30, 0, 0, time.Local) }
	assert.Equal(t, 1, env.engine.OnTrigger(ctx, webhook, false))
	assert.True(t, lightOn.IsOnData.Current())

	// No window for Tuesday: the condition passes.
	lightOn.IsOnData.Set(false)
	env.engine.now = func() time.Time { return time.Date(2026, 10, 13, 3, 0, 0, 0, time.Local) }
	assert.Equal(t, 1, env.engine.OnTrigger(ctx, webhook, false))

	// skipConditions bypasses them.
	switchOn.IsOnData.Set(false)
	assert.Equal(t, 1, env.engine.OnTrigger(ctx, webhook, true))
}

func TestEngine_TimeWindowOvernight(t *testing.T) {
	env := setupEngine(t)
	c := Condition{Type: ConditionTimeWindow, Windows: map[string]TimeWindow{Friday: {Start: "22:00", End: "06:00"}}}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"late evening", time.Date(2026, 10, 16, 23, 15, 0, 0, time.Local), true},
		{"early morning", time.Date(2026, 10, 16, 5, 59, 0, 0, time.Local), true},
		{"midday", time.Date(2026, 10, 16, 12, 0, 0, 0, time.Local), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.engine.now = func() time.Time { return tt.at }
			assert.Equal(t, tt.want, env.engine.checkTimeWindow(c))
		})
	}
}

func TestEngine_GroupORDeviceAND(t *testing.T) {
	good := memory.NewOnOff()
	bad := memory.NewOnOff()
	bad.SetHandler(memory.FailWith(errors.New("offline")))

	// Two outlets on one device, one of which rejects commands.
	strip := device.New(device.Info{ID: "mqtt:strip", Source: device.SourceMQTT},
		device.NewEndpoint([]cluster.Cluster{good}, device.NewEndpoint([]cluster.Cluster{bad})))
	lamp, lampOn := newLight("mqtt:lamp")
	env := setupEngine(t, strip, lamp)

	groupID, err := env.groups.Create(device.Group{Name: "Living", DeviceIDs: []string{"mqtt:strip", "mqtt:lamp", "mqtt:gone"}})
	require.NoError(t, err)

	single := createScene(t, env, Scene{Title: "Strip", Actions: []Action{onOffAction("mqtt:strip", true)}})
	group := createScene(t, env, Scene{Title: "Living", Actions: []Action{
		{GroupID: groupID, Kind: ActionOnOff, OnOff: &OnOffPayload{IsOn: true}},
	}})

	ctx := context.Background()
	assert.False(t, env.engine.TriggerScene(ctx, single.ID, nil), "one failing cluster fails the device")
	assert.True(t, env.engine.TriggerScene(ctx, group.ID, nil), "one working member is enough")
	assert.True(t, lampOn.IsOnData.Current())

	excluded := createScene(t, env, Scene{Title: "Strip only", Actions: []Action{
		{GroupID: groupID, ExcludeDeviceIDs: []string{"mqtt:lamp"}, Kind: ActionOnOff, OnOff: &OnOffPayload{IsOn: false}},
	}})
	assert.False(t, env.engine.TriggerScene(ctx, excluded.ID, nil))
	assert.True(t, lampOn.IsOnData.Current(), "excluded member untouched")
}

func TestEngine_ManualRunChecksFlaggedConditions(t *testing.T) {
	light, on := newLight("mqtt:hall")
	env := setupEngine(t, light)
	env.presence.hosts["phone"] = false

	scene := createScene(t, env, Scene{
		Title:   "Welcome",
		Actions: []Action{onOffAction("mqtt:hall", true)},
		Triggers: []TriggerEntry{{
			Trigger: Trigger{Type: TriggerHostArrival, HostID: "phone"},
			Conditions: []Condition{
				{Type: ConditionHostHome, HostID: "phone", ShouldBeHome: true},
			},
		}},
	})
	ctx := context.Background()

	// Unflagged conditions are skipped on manual runs.
	assert.True(t, env.engine.TriggerScene(ctx, scene.ID, nil))
	assert.True(t, on.IsOnData.Current())

	on.IsOnData.Set(false)
	scene.Triggers[0].Conditions[0].CheckOnManual = true
	_, err := env.engine.Scenes().UpdateScene(scene.ID, *scene)
	require.NoError(t, err)

	assert.False(t, env.engine.TriggerScene(ctx, scene.ID, nil))
	assert.False(t, on.IsOnData.Current())
	runs := env.repo.all()
	require.Len(t, runs, 2, "blocked run is logged")
	assert.False(t, runs[1].Success)
	assert.Equal(t, TriggerManual, runs[1].TriggerType)
	assert.Equal(t, scene.ID, runs[1].SceneID)

	env.presence.hosts["phone"] = true
	assert.True(t, env.engine.TriggerScene(ctx, scene.ID, &TriggerInfo{Type: TriggerManual}))

	// A non-manual trigger info skips the manual check entirely.
	env.presence.hosts["phone"] = false
	assert.True(t, env.engine.TriggerScene(ctx, scene.ID, &TriggerInfo{Type: TriggerWebhook, Source: "api"}))
}

func TestEngine_PresenceUnknownFailsClosed(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	assert.False(t, env.engine.evaluateCondition(ctx, Condition{Type: ConditionHostHome, HostID: "nobody"}))
	assert.False(t, env.engine.evaluateCondition(ctx, Condition{Type: ConditionAnyoneHome, ShouldBeHome: false}))

	env.presence.anyone = ptr(false)
	assert.True(t, env.engine.evaluateCondition(ctx, Condition{Type: ConditionAnyoneHome, ShouldBeHome: false}))
}

func TestEngine_VariableCondition(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, env.engine.Variables().Set("armed", true))

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"true matches", Condition{Type: ConditionVariable, VariableName: "armed", ShouldBeTrue: true}, true},
		{"true inverted", Condition{Type: ConditionVariable, VariableName: "armed", ShouldBeTrue: true, Invert: true}, false},
		{"unset reads false", Condition{Type: ConditionVariable, VariableName: "unset"}, true},
		{"unset inverted", Condition{Type: ConditionVariable, VariableName: "unset", Invert: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.engine.evaluateCondition(ctx, tt.cond))
		})
	}
}

func TestEngine_CustomCodeCondition(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, env.engine.Variables().Set("armed", true))
	env.engine.now = func() time.Time { return time.Date(2026, 10, 16, 21, 5, 0, 0, time.Local) }

	tests := []struct {
		code string
		want bool
	}{
		{"return true", true},
		{"return false", false},
		{"", true},
		{"return variables.armed", true},
		{"return variables.missing == nil", true},
		{"return now.hour >= 21 and now.weekday == 6", true},
		{"error('boom')", false},
		{"return os.time()", false},
		{"return (", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := env.engine.evaluateCondition(ctx, Condition{Type: ConditionCustomCode, Code: tt.code})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_CustomCodeTimeout(t *testing.T) {
	env := setupEngine(t)
	env.engine.codeTimeout = 20 * time.Millisecond

	start := time.Now()
	ok := env.engine.evaluateCondition(context.Background(), Condition{Type: ConditionCustomCode, Code: "while true do end"})
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEngine_DelayConditionHonoursContext(t *testing.T) {
	env := setupEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, env.engine.evaluateCondition(ctx, Condition{Type: ConditionDelay, Seconds: 60}))
	assert.True(t, env.engine.evaluateCondition(context.Background(), Condition{Type: ConditionDelay}))
}

func TestEngine_EngineActions(t *testing.T) {
	env := setupEngine(t)
	scene := createScene(t, env, Scene{Title: "Away", Actions: []Action{
		{Kind: ActionNotification, Notification: &NotificationPayload{Title: "Hub", Message: "Away mode"}},
		{Kind: ActionSetVariable, SetVariable: &SetVariablePayload{VariableName: "away", VariableValue: true}},
		{Kind: ActionRoomTemperature, RoomTemperature: &RoomTemperaturePayload{RoomName: "Lounge", TargetTemperature: 16}},
	}})

	assert.True(t, env.engine.TriggerScene(context.Background(), scene.ID, nil))
	assert.Equal(t, []string{"Hub: Away mode"}, env.notifier.sent)
	assert.True(t, env.engine.Variables().Get("away"))
	assert.Equal(t, 16.0, env.rooms.targets["Lounge"])

	env.notifier.err = errors.New("smtp down")
	assert.False(t, env.engine.TriggerScene(context.Background(), scene.ID, nil))
}

func TestEngine_HTTPRequestAction(t *testing.T) {
	var (
		mu       sync.Mutex
		gotBody  string
		gotType  string
		gotToken string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = string(body)
		gotType = r.Header.Get("Content-Type")
		gotToken = r.Header.Get("X-Token")
		mu.Unlock()
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	env := setupEngine(t)
	ctx := context.Background()

	post := createScene(t, env, Scene{Title: "Post", Actions: []Action{{Kind: ActionHTTPRequest, HTTPRequest: &HTTPRequestPayload{
		URL: srv.URL + "/ok", Method: http.MethodPost,
		Body:    map[string]any{"scene": "post"},
		Headers: map[string]string{"X-Token": "secret"},
	}}}})
	assert.True(t, env.engine.TriggerScene(ctx, post.ID, nil))
	mu.Lock()
	assert.JSONEq(t, `{"scene":"post"}`, gotBody)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "secret", gotToken)
	mu.Unlock()

	get := createScene(t, env, Scene{Title: "Get", Actions: []Action{{Kind: ActionHTTPRequest, HTTPRequest: &HTTPRequestPayload{
		URL: srv.URL + "/ok", Method: http.MethodGet, Body: map[string]any{"ignored": true},
	}}}})
	assert.True(t, env.engine.TriggerScene(ctx, get.ID, nil))
	mu.Lock()
	assert.Empty(t, gotBody, "GET sends no body")
	mu.Unlock()

	fail := createScene(t, env, Scene{Title: "Fail", Actions: []Action{{Kind: ActionHTTPRequest, HTTPRequest: &HTTPRequestPayload{
		URL: srv.URL + "/fail", Method: http.MethodGet,
	}}}})
	assert.False(t, env.engine.TriggerScene(ctx, fail.ID, nil))
}

func TestEngine_LevelAndColourActions(t *testing.T) {
	level := memory.NewLevelControl(0)
	colour := memory.NewColorXY(1)
	blind := memory.NewWindowCovering()
	d := device.New(device.Info{ID: "mqtt:lamp", Source: device.SourceMQTT},
		device.NewEndpoint([]cluster.Cluster{level, colour, blind}))
	env := setupEngine(t, d)

	scene := createScene(t, env, Scene{Title: "Mood", Actions: []Action{
		{DeviceID: "mqtt:lamp", Kind: ActionLevelControl, LevelControl: &LevelControlPayload{Level: 40}},
		{DeviceID: "mqtt:lamp", Kind: ActionColorControl, ColorControl: &ColorControlPayload{Hue: 120, Saturation: 100, Value: 100}},
		{DeviceID: "mqtt:lamp", Kind: ActionWindowCovering, WindowCovering: &WindowCoveringPayload{TargetPositionLiftPercentage: 25}},
	}})

	assert.True(t, env.engine.TriggerScene(context.Background(), scene.ID, nil))
	assert.InDelta(t, 0.4, level.CurrentLevelData.Current(), 1e-9)
	assert.Len(t, colour.Commands(), 1)
	assert.InDelta(t, 25, blind.TargetLiftData.Current(), 1e-9)
	assert.False(t, env.engine.RampActive("mqtt:lamp"))
}

func TestEngine_RampCancelledByExternalChange(t *testing.T) {
	on := memory.NewOnOff()
	level := memory.NewLevelControl(0)
	d := device.New(device.Info{ID: "mqtt:lamp", Source: device.SourceMQTT},
		device.NewEndpoint([]cluster.Cluster{on, level}))
	env := setupEngine(t, d)

	scene := createScene(t, env, Scene{Title: "Sunrise", Actions: []Action{
		{DeviceID: "mqtt:lamp", Kind: ActionLevelControl, LevelControl: &LevelControlPayload{Level: 80, DurationSeconds: 600}},
	}})

	require.True(t, env.engine.TriggerScene(context.Background(), scene.ID, nil))
	assert.True(t, on.IsOnData.Current(), "ramp switches the device on")
	require.True(t, env.engine.RampActive("mqtt:lamp"))

	require.Eventually(t, func() bool { return len(level.Commands()) >= 2 }, time.Second, time.Millisecond)

	// Keep nudging until the ramp sees a write it did not make.
	nudge := 0
	require.Eventually(t, func() bool {
		nudge++
		level.CurrentLevelData.Set(0.5 + float64(nudge)/1000)
		return !env.engine.RampActive("mqtt:lamp")
	}, time.Second, 5*time.Millisecond)

	sent := len(level.Commands())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, sent, len(level.Commands()), "no writes after cancellation")
}

func TestEngine_RampCompletes(t *testing.T) {
	level := memory.NewLevelControl(0.2)
	d := device.New(device.Info{ID: "mqtt:lamp", Source: device.SourceMQTT},
		device.NewEndpoint([]cluster.Cluster{level}))
	env := setupEngine(t, d)

	require.True(t, env.engine.ramps.Start(context.Background(), d, 1, 30*time.Millisecond))
	require.Eventually(t, func() bool { return !env.engine.RampActive("mqtt:lamp") }, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 1, level.CurrentLevelData.Current(), 1e-9)
}

func TestEngine_StopRamp(t *testing.T) {
	level := memory.NewLevelControl(0)
	d := device.New(device.Info{ID: "mqtt:lamp", Source: device.SourceMQTT},
		device.NewEndpoint([]cluster.Cluster{level}))
	env := setupEngine(t, d)

	require.True(t, env.engine.ramps.Start(context.Background(), d, 1, time.Hour))
	env.engine.StopRamp("mqtt:lamp")
	assert.False(t, env.engine.RampActive("mqtt:lamp"))

	// A device without LevelControl cannot ramp.
	light, _ := newLight("mqtt:plain")
	assert.False(t, env.engine.ramps.Start(context.Background(), light, 1, time.Second))
}

func TestEngine_NewRampReplacesPrevious(t *testing.T) {
	level := memory.NewLevelControl(0)
	d := device.New(device.Info{ID: "mqtt:lamp", Source: device.SourceMQTT},
		device.NewEndpoint([]cluster.Cluster{level}))
	env := setupEngine(t, d)
	ctx := context.Background()

	require.True(t, env.engine.ramps.Start(ctx, d, 1, time.Hour))
	require.Eventually(t, func() bool { return len(level.Commands()) >= 2 }, time.Second, time.Millisecond)

	// The second ramp heads down and finishes on its first step.
	require.True(t, env.engine.ramps.Start(ctx, d, 0, time.Millisecond))
	require.Eventually(t, func() bool { return !env.engine.RampActive("mqtt:lamp") }, time.Second, 5*time.Millisecond)

	sent := len(level.Commands())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, sent, len(level.Commands()), "the replaced ramp must not keep writing")
	assert.InDelta(t, 0, level.CurrentLevelData.Current(), 1e-9)
}

func TestEngine_ConcurrentRampsLeaveOneWriter(t *testing.T) {
	on := memory.NewOnOff()
	on.SetHandler(func(context.Context, memory.Command) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	})
	level := memory.NewLevelControl(0)
	d := device.New(device.Info{ID: "mqtt:lamp", Source: device.SourceMQTT},
		device.NewEndpoint([]cluster.Cluster{on, level}))
	env := setupEngine(t, d)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.engine.ramps.Start(ctx, d, 1, 2*time.Second)
		}()
	}
	wg.Wait()
	require.Eventually(t, func() bool { return len(level.Commands()) >= 2 }, time.Second, time.Millisecond)

	env.engine.StopRamp("mqtt:lamp")
	assert.False(t, env.engine.RampActive("mqtt:lamp"))

	sent := len(level.Commands())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, sent, len(level.Commands()), "no ramp may survive Stop")
}
