package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/cluster/memory"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/location"
	"github.com/nerrad567/gray-logic-hub/internal/store"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

// testEnv is a server over a document store in a temporary directory and
// an in-memory SQLite history database.
type testEnv struct {
	srv       *Server
	db        *store.DB
	registry  *device.Registry
	engine    *automation.Engine
	statusLog *device.SQLiteStatusHistoryRepository
}

// fakeCheck is a HealthChecker with a fixed answer.
type fakeCheck struct{ err error }

func (f fakeCheck) HealthCheck(context.Context) error { return f.err }

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	sqlDB, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, sqlDB.Migrate(context.Background(), migrations.FS))
	statusLog := device.NewSQLiteStatusHistoryRepository(sqlDB.DB)

	registry, err := device.NewRegistry(db, statusLog)
	require.NoError(t, err)
	scenes, err := automation.NewRegistry(db)
	require.NoError(t, err)
	vars, err := automation.NewVariables(db)
	require.NoError(t, err)
	groups, err := device.NewGroups(db)
	require.NoError(t, err)
	palettes, err := device.NewPalettes(db)
	require.NoError(t, err)

	engine := automation.NewEngine(scenes, automation.Options{
		Devices:    registry,
		Groups:     groups,
		Palettes:   palettes,
		Variables:  vars,
		Executions: automation.NewSQLiteRepository(sqlDB.DB),
	})
	t.Cleanup(engine.Close)

	deps := Deps{
		Config:    config.APIConfig{Host: "127.0.0.1"},
		WS:        config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:    logging.Discard(),
		Registry:  registry,
		Groups:    groups,
		Palettes:  palettes,
		Engine:    engine,
		StatusLog: statusLog,
		Version:   "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	require.NoError(t, err)
	return &testEnv{srv: srv, db: db, registry: registry, engine: engine, statusLog: statusLog}
}

// do sends a request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func newLight(id, name string) *device.Device {
	return device.New(device.Info{ID: id, Source: device.SourceMQTT, Name: name},
		device.NewEndpoint([]cluster.Cluster{memory.NewOnOff()}))
}

// ─── Construction ───────────────────────────────────────────────────────────

func TestNew_RequiresCoreDependencies(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := New(Deps{Registry: env.registry, Engine: env.engine})
	assert.Error(t, err, "missing logger")
	_, err = New(Deps{Logger: logging.Discard(), Engine: env.engine})
	assert.Error(t, err, "missing registry")
	_, err = New(Deps{Logger: logging.Discard(), Registry: env.registry})
	assert.Error(t, err, "missing engine")
}

func TestStartAndClose(t *testing.T) {
	env := newTestEnv(t, nil)

	require.NoError(t, env.srv.Start(context.Background()))
	require.NotEmpty(t, env.srv.Addr())
	require.NoError(t, env.srv.HealthCheck(context.Background()))

	resp, err := http.Get("http://" + env.srv.Addr() + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck // Test cleanup
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, env.srv.Close())
}

func TestHealthCheck_NotStarted(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Error(t, env.srv.HealthCheck(context.Background()))
	assert.NoError(t, env.srv.Close())
}

// ─── Health and Middleware ──────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{"store": fakeCheck{}}
	})

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, map[string]any{"store": "ok"}, body["components"])
}

func TestHealth_Degraded(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"store": fakeCheck{},
			"mqtt":  fakeCheck{err: errors.New("not connected")},
		}
	})

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"store": "ok", "mqtt": "not connected"}, body["components"])
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "client-id-123", rec.Header().Get("X-Request-ID"))
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/scenes", nil)
	req.Header.Set("Origin", "http://panel.local")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://panel.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/v1/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ─── Devices ────────────────────────────────────────────────────────────────

func TestListDevices_Empty(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Devices []deviceView `json:"devices"`
		Count   int          `json:"count"`
	}](t, rec)
	assert.Empty(t, body.Devices)
	assert.Zero(t, body.Count)
}

func TestListDevices_IncludesOffline(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.registry.SetDevices(ctx, []*device.Device{newLight("mqtt:hall", "Hall"), newLight("mqtt:porch", "Porch")}, device.SourceMQTT)
	env.registry.SetDevices(ctx, []*device.Device{newLight("mqtt:hall", "Hall")}, device.SourceMQTT)

	rec := env.do(t, http.MethodGet, "/api/v1/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Devices []deviceView `json:"devices"`
	}](t, rec)
	require.Len(t, body.Devices, 2)

	assert.Equal(t, "mqtt:hall", body.Devices[0].ID)
	assert.Equal(t, device.StatusOnline, body.Devices[0].Status)
	assert.Equal(t, []string{string(cluster.NameOnOff)}, body.Devices[0].Clusters)

	assert.Equal(t, "mqtt:porch", body.Devices[1].ID)
	assert.Equal(t, device.StatusOffline, body.Devices[1].Status)
	assert.Empty(t, body.Devices[1].Clusters)
}

func TestGetDevice(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registry.SetDevices(context.Background(), []*device.Device{newLight("mqtt:hall", "Hall")}, device.SourceMQTT)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/mqtt:hall", "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[deviceView](t, rec)
	assert.Equal(t, "Hall", v.Name)
	assert.Equal(t, device.SourceMQTT, v.Source)
	require.NotNil(t, v.LastSeen)

	rec = env.do(t, http.MethodGet, "/api/v1/devices/mqtt:missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateDevice(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registry.SetDevices(context.Background(), []*device.Device{newLight("mqtt:hall", "Hall")}, device.SourceMQTT)

	rec := env.do(t, http.MethodPatch, "/api/v1/devices/mqtt:hall",
		`{"name":"Hallway","room":"Downstairs","icon":"stairs"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decode[deviceView](t, rec)
	assert.Equal(t, "Hallway", v.Name)
	assert.Equal(t, "Downstairs", v.Room)

	rec = env.do(t, http.MethodGet, "/api/v1/devices?room=Downstairs", "")
	body := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	assert.Equal(t, 1, body.Count)

	rec = env.do(t, http.MethodGet, "/api/v1/rooms", "")
	rooms := decode[struct {
		Rooms []device.Room `json:"rooms"`
	}](t, rec)
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, "Downstairs", rooms.Rooms[0].Name)
	assert.Equal(t, "stairs", rooms.Rooms[0].Icon)
}

func TestUpdateDevice_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"nothing to update", `{}`, http.StatusBadRequest},
		{"unknown device", `{"name":"x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPatch, "/api/v1/devices/mqtt:missing", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestDeviceStatusHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.registry.SetDevices(ctx, []*device.Device{newLight("mqtt:hall", "Hall")}, device.SourceMQTT)
	env.registry.SetDevices(ctx, nil, device.SourceMQTT)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/mqtt:hall/status-history", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	assert.Equal(t, 2, body.Count)

	rec = env.do(t, http.MethodGet, "/api/v1/devices/mqtt:hall/status-history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceStatusHistory_Unavailable(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.StatusLog = nil })
	rec := env.do(t, http.MethodGet, "/api/v1/devices/mqtt:hall/status-history", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// ─── Groups and Palettes ────────────────────────────────────────────────────

func TestGroupLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/groups", `{"name":"Downstairs","deviceIds":["mqtt:hall"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[device.Group](t, rec)
	require.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Color, "colour derived from name")

	rec = env.do(t, http.MethodPost, "/api/v1/groups", `{"name":"Downstairs"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/groups/"+created.ID, `{"name":"Ground floor","deviceIds":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ground floor", decode[device.Group](t, rec).Name)

	rec = env.do(t, http.MethodGet, "/api/v1/groups", "")
	assert.Equal(t, 1, decode[struct {
		Count int `json:"count"`
	}](t, rec).Count)

	rec = env.do(t, http.MethodDelete, "/api/v1/groups/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/groups/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroups_Unavailable(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Groups = nil; d.Palettes = nil })

	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/api/v1/groups", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/api/v1/palettes", "").Code)
}

func TestPaletteLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/palettes", `{"name":"Sunset","colors":["#ff8800","#aa00ff"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[device.Palette](t, rec)
	require.NotEmpty(t, created.ID)

	rec = env.do(t, http.MethodGet, "/api/v1/palettes", "")
	assert.Equal(t, 1, decode[struct {
		Count int `json:"count"`
	}](t, rec).Count)

	rec = env.do(t, http.MethodDelete, "/api/v1/palettes/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// ─── Variables ──────────────────────────────────────────────────────────────

func TestVariables(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/variables/away", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, variableBody{Name: "away", Value: false}, decode[variableBody](t, rec))

	rec = env.do(t, http.MethodPut, "/api/v1/variables/away", `{"value":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.engine.Variables().Get("away"))

	rec = env.do(t, http.MethodGet, "/api/v1/variables", "")
	body := decode[struct {
		Variables map[string]bool `json:"variables"`
	}](t, rec)
	assert.Equal(t, map[string]bool{"away": true}, body.Variables)

	rec = env.do(t, http.MethodDelete, "/api/v1/variables/away", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, env.engine.Variables().Get("away"))
}

func TestSetVariable_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/api/v1/variables/away", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/api/v1/variables/bad%20name", `{"value":true}`).Code)
}

// ─── Readouts ───────────────────────────────────────────────────────────────

func TestReadouts_Unavailable(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{
		"/api/v1/history/temperature/mqtt:hall",
		"/api/v1/thermostat",
		"/api/v1/presence",
		"/api/v1/locations/devices",
		"/api/v1/locations/targets",
	} {
		t.Run(path, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, path, "")
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.Equal(t, ErrCodeUnavailable, decode[Error](t, rec).Code)
		})
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	got, ok := parseSince("", now)
	assert.True(t, ok)
	assert.True(t, got.IsZero())

	got, ok = parseSince("24h", now)
	assert.True(t, ok)
	assert.Equal(t, now.Add(-24*time.Hour), got)

	got, ok = parseSince("2026-09-30T08:00:00Z", now)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 9, 30, 8, 0, 0, 0, time.UTC), got)

	_, ok = parseSince("yesterday", now)
	assert.False(t, ok)
	_, ok = parseSince("-1h", now)
	assert.False(t, ok)
}

func TestLocationTargets(t *testing.T) {
	env := newTestEnv(t, nil)
	locations, err := location.NewService(location.Options{Store: env.db})
	require.NoError(t, err)
	env.srv.locations = locations

	rec := env.do(t, http.MethodPut, "/api/v1/locations/targets/home",
		`{"name":"Home","coordinates":{"latitude":51.5,"longitude":-0.12}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "home", decode[location.Target](t, rec).ID)

	rec = env.do(t, http.MethodPut, "/api/v1/locations/targets/work",
		`{"name":"Work","coordinates":{"latitude":123,"longitude":0}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/locations/targets", "")
	body := decode[struct {
		Targets []location.Target `json:"targets"`
	}](t, rec)
	require.Len(t, body.Targets, 1)
	assert.Equal(t, "Home", body.Targets[0].Name)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/locations/targets/home", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/v1/locations/targets/home", "").Code)
}

// ─── WebSocket ──────────────────────────────────────────────────────────────

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()                  //nolint:errcheck // Test cleanup
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck // Test cleanup
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_PingPong(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}))
	msg := readWS(t, conn)
	assert.Equal(t, WSTypePong, msg.Type)
	assert.Equal(t, "p1", msg.ID)
}

func TestWebSocket_UnknownType(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "bogus", ID: "x"}))
	assert.Equal(t, WSTypeError, readWS(t, conn).Type)
}

func TestWebSocket_UnknownChannel(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env)

	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "s1",
		Payload: WSSubscribePayload{Channels: []string{"weather"}},
	}))
	msg := readWS(t, conn)
	assert.Equal(t, WSTypeError, msg.Type)
	assert.Equal(t, "s1", msg.ID)
}

func TestWebSocket_WildcardReceivesSceneRuns(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env)

	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "s1",
		Payload: WSSubscribePayload{Channels: []string{ChannelAll}},
	}))
	require.Equal(t, WSTypeResponse, readWS(t, conn).Type)
	require.Equal(t, ChannelDevicesChanged, readWS(t, conn).EventType)

	env.srv.Hub().Broadcast(ChannelSceneExecuted, map[string]string{"sceneId": "s-1"})
	msg := readWS(t, conn)
	assert.Equal(t, WSTypeEvent, msg.Type)
	assert.Equal(t, ChannelSceneExecuted, msg.EventType)
}

func TestWebSocket_DeviceChangesRelayed(t *testing.T) {
	env := newTestEnv(t, nil)
	unsubscribe := env.srv.relayDevices()
	t.Cleanup(unsubscribe)

	conn := dialWS(t, env)
	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "s1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDevicesChanged}},
	}))
	require.Equal(t, WSTypeResponse, readWS(t, conn).Type)
	require.Equal(t, 1, env.srv.Hub().ClientCount())

	snapshot := readWS(t, conn)
	assert.Equal(t, ChannelDevicesChanged, snapshot.EventType)
	assert.Empty(t, snapshot.Payload)

	env.registry.SetDevices(context.Background(), []*device.Device{newLight("mqtt:hall", "Hall")}, device.SourceMQTT)

	msg := readWS(t, conn)
	assert.Equal(t, WSTypeEvent, msg.Type)
	assert.Equal(t, ChannelDevicesChanged, msg.EventType)

	views, ok := msg.Payload.([]any)
	require.True(t, ok, "payload is %T", msg.Payload)
	require.Len(t, views, 1)
	assert.Equal(t, "mqtt:hall", views[0].(map[string]any)["id"])
}

func TestWebSocket_DeviceStateChangesRelayed(t *testing.T) {
	env := newTestEnv(t, nil)
	on := memory.NewOnOff()
	light := device.New(device.Info{ID: "mqtt:porch", Source: device.SourceMQTT, Name: "Porch"},
		device.NewEndpoint([]cluster.Cluster{on}))
	env.registry.SetDevices(context.Background(), []*device.Device{light}, device.SourceMQTT)

	unsubscribe := env.srv.relayDevices()
	t.Cleanup(unsubscribe)
	require.Equal(t, 1, light.OnChange().ListenerCount())

	conn := dialWS(t, env)
	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "s1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDeviceUpdated}},
	}))
	require.Equal(t, WSTypeResponse, readWS(t, conn).Type)

	on.IsOnData.Set(true)

	msg := readWS(t, conn)
	assert.Equal(t, WSTypeEvent, msg.Type)
	require.Equal(t, ChannelDeviceUpdated, msg.EventType)
	view, ok := msg.Payload.(map[string]any)
	require.True(t, ok, "payload is %T", msg.Payload)
	assert.Equal(t, "mqtt:porch", view["id"])
	state, ok := view["state"].(map[string]any)
	require.True(t, ok, "state is %T", view["state"])
	assert.Equal(t, map[string]any{"isOn": true}, state[string(cluster.NameOnOff)])

	light.SetStatus(device.StatusOffline)
	msg = readWS(t, conn)
	require.Equal(t, ChannelDeviceUpdated, msg.EventType)
	assert.Equal(t, string(device.StatusOffline), msg.Payload.(map[string]any)["status"])

	env.registry.SetDevices(context.Background(), nil, device.SourceMQTT)
	assert.Zero(t, light.OnChange().ListenerCount(), "removed devices are detached")
}

func TestDeviceState_SkipsUndefinedCells(t *testing.T) {
	level := memory.NewLevelControl(0.4)
	d := device.New(device.Info{ID: "mqtt:desk", Source: device.SourceMQTT},
		device.NewEndpoint([]cluster.Cluster{memory.NewOnOff(), level}))

	state := deviceState(d)
	assert.NotContains(t, state, string(cluster.NameOnOff))
	assert.Equal(t, map[string]any{"currentLevel": 0.4}, state[string(cluster.NameLevelControl)])
}

func TestWebSocket_VariableChangesRelayed(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.engine.Variables().Set("guest", true))
	stop := env.srv.relayVariables()
	t.Cleanup(stop)

	conn := dialWS(t, env)
	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "s1",
		Payload: WSSubscribePayload{Channels: []string{ChannelVariablesChanged}},
	}))
	require.Equal(t, WSTypeResponse, readWS(t, conn).Type)

	snapshot := readWS(t, conn)
	require.Equal(t, ChannelVariablesChanged, snapshot.EventType)
	assert.Equal(t, map[string]any{"guest": true}, snapshot.Payload)

	require.NoError(t, env.engine.Variables().Set("away", true))
	msg := readWS(t, conn)
	require.Equal(t, ChannelVariablesChanged, msg.EventType)
	assert.Equal(t, map[string]any{"name": "away", "value": true}, msg.Payload)

	require.NoError(t, env.engine.Variables().Delete("away"))
	msg = readWS(t, conn)
	assert.Equal(t, map[string]any{"name": "away", "value": false}, msg.Payload)
}
