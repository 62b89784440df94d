package mqttdevice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/cluster/memory"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu         sync.Mutex
	handlers   map[string]mqtt.MessageHandler
	published  []published
	publishErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, payload []byte, _ byte, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{topic, payload})
	return nil
}

func (c *fakeClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	return nil
}

func (c *fakeClient) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	return nil
}

// deliver routes a message the way the broker would for the state wildcard.
func (c *fakeClient) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	c.mu.Lock()
	h, ok := c.handlers[mqtt.Topics{}.AllBridgeStates()]
	c.mu.Unlock()
	require.True(t, ok, "state wildcard not subscribed")
	return h(topic, []byte(payload))
}

// statefulClient adds broker reachability to fakeClient.
type statefulClient struct {
	*fakeClient
	state *reactive.Data[bool]
}

func (c *statefulClient) State() reactive.Cell[bool] { return c.state }

type fakeRegistry struct {
	mu   sync.Mutex
	devs []*device.Device
	sets int
}

func (r *fakeRegistry) SetDevices(_ context.Context, devs []*device.Device, source device.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if source != device.SourceMQTT {
		panic("unexpected source " + string(source))
	}
	r.devs = devs
	r.sets++
}

func (r *fakeRegistry) get(id string) *device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devs {
		if d.ID() == id {
			return d
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func testConfig() *Config {
	return &Config{Devices: []DeviceConfig{
		{ID: "lamp", Name: "Lamp", Clusters: []ClusterConfig{
			{Type: cluster.NameOnOff},
			{Type: cluster.NameLevelControl, Key: "dimmer"},
		}},
		{ID: "trv", Clusters: []ClusterConfig{{Type: cluster.NameThermostat, Role: "slave"}}},
		{ID: "remote", Clusters: []ClusterConfig{{Type: cluster.NameSwitch, Variant: "longPress"}}},
		{ID: "bath", Clusters: []ClusterConfig{{Type: cluster.NameRelativeHumidityMeasurement}}},
	}}
}

func startBridge(t *testing.T) (*Bridge, *fakeClient, *fakeRegistry) {
	t.Helper()
	client := newFakeClient()
	reg := &fakeRegistry{}
	b := New(client, reg, nil)
	require.NoError(t, b.Start(context.Background(), testConfig()))
	return b, client, reg
}

func stateTopic(id, key string) string {
	return mqtt.Topics{}.BridgeState(id, key)
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestBridge_RegistersDevices(t *testing.T) {
	_, _, reg := startBridge(t)

	require.Len(t, reg.devs, 4)
	lamp := reg.get("mqtt:lamp")
	require.NotNil(t, lamp)
	assert.Equal(t, "Lamp", lamp.Name())
	assert.Equal(t, device.SourceMQTT, lamp.Source())

	_, ok := device.ClusterOf[cluster.OnOff](lamp, cluster.NameOnOff)
	assert.True(t, ok)
	_, ok = device.ClusterOf[cluster.LevelControl](lamp, cluster.NameLevelControl)
	assert.True(t, ok)

	assert.Equal(t, "remote", reg.get("mqtt:remote").Name(), "name defaults to id")
}

func TestBridge_StateReports(t *testing.T) {
	_, client, reg := startBridge(t)

	require.NoError(t, client.deliver(t, stateTopic("lamp", "OnOff"), `{"on":true}`))
	require.NoError(t, client.deliver(t, stateTopic("lamp", "dimmer"), `{"level":0.4}`))
	require.NoError(t, client.deliver(t, stateTopic("trv", "Thermostat"), `{"mode":"heat","currentTemperature":19.5,"isHeating":true}`))

	lamp := reg.get("mqtt:lamp")
	onOff, _ := device.ClusterOf[cluster.OnOff](lamp, cluster.NameOnOff)
	on, ok := onOff.IsOn().Lookup()
	require.True(t, ok)
	assert.True(t, on)
	level, _ := device.ClusterOf[cluster.LevelControl](lamp, cluster.NameLevelControl)
	assert.Equal(t, 0.4, level.CurrentLevel().Current())

	trv, _ := device.ClusterOf[cluster.Thermostat](reg.get("mqtt:trv"), cluster.NameThermostat)
	assert.Equal(t, cluster.ModeHeat, trv.Mode().Current())
	assert.Equal(t, cluster.RoleSlave, trv.Role())
	assert.Equal(t, 19.5, trv.CurrentTemperature().Current())
	assert.True(t, trv.IsHeating().Current())
}

func TestBridge_SwitchEvents(t *testing.T) {
	_, client, reg := startBridge(t)

	sw, ok := device.ClusterOf[cluster.Switch](reg.get("mqtt:remote"), cluster.NameSwitch)
	require.True(t, ok)
	var presses, longPresses int
	sw.OnPress().Listen(func(struct{}) { presses++ })
	sw.OnLongPress().Listen(func(struct{}) { longPresses++ })

	require.NoError(t, client.deliver(t, stateTopic("remote", "Switch"), `{"event":"press"}`))
	require.NoError(t, client.deliver(t, stateTopic("remote", "Switch"), `{"event":"longPress"}`))
	assert.Equal(t, 1, presses)
	assert.Equal(t, 1, longPresses)

	err := client.deliver(t, stateTopic("remote", "Switch"), `{"event":"twist"}`)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestBridge_RejectsBadReports(t *testing.T) {
	_, client, _ := startBridge(t)

	assert.ErrorIs(t, client.deliver(t, stateTopic("ghost", "OnOff"), `{"on":true}`), ErrUnknownDevice)
	assert.ErrorIs(t, client.deliver(t, stateTopic("lamp", "Nope"), `{"on":true}`), ErrUnknownCluster)
	assert.ErrorIs(t, client.deliver(t, stateTopic("lamp", "OnOff"), `not json`), ErrInvalidState)
	assert.ErrorIs(t, client.deliver(t, stateTopic("bath", "RelativeHumidityMeasurement"), `{"humidity":55}`), ErrInvalidState)
	assert.ErrorIs(t, client.deliver(t, stateTopic("trv", "Thermostat"), `{"mode":"turbo"}`), ErrInvalidState)
}

func TestBridge_CommandsArePublished(t *testing.T) {
	_, client, reg := startBridge(t)
	ctx := context.Background()

	onOff, _ := device.ClusterOf[cluster.OnOff](reg.get("mqtt:lamp"), cluster.NameOnOff)
	require.NoError(t, onOff.SetOn(ctx, true))
	assert.True(t, onOff.IsOn().Current(), "applied once published")

	require.Len(t, client.published, 1)
	msg := client.published[0]
	assert.Equal(t, "graylogic/bridge/mqtt/command/lamp/OnOff", msg.topic)

	var cmd memory.Command
	require.NoError(t, json.Unmarshal(msg.payload, &cmd))
	assert.Equal(t, cluster.NameOnOff, cmd.Cluster)
	assert.Equal(t, "setOn", cmd.Method)
	assert.Equal(t, true, cmd.Args["on"])

	level, _ := device.ClusterOf[cluster.LevelControl](reg.get("mqtt:lamp"), cluster.NameLevelControl)
	require.NoError(t, level.SetLevel(ctx, 0.8, 0))
	assert.Equal(t, "graylogic/bridge/mqtt/command/lamp/dimmer", client.published[1].topic)
}

func TestBridge_PublishFailureLeavesStateUntouched(t *testing.T) {
	_, client, reg := startBridge(t)
	client.publishErr = errors.New("broker down")

	onOff, _ := device.ClusterOf[cluster.OnOff](reg.get("mqtt:lamp"), cluster.NameOnOff)
	err := onOff.SetOn(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	_, ok := onOff.IsOn().Lookup()
	assert.False(t, ok)
}

func TestBridge_ReloadAndStop(t *testing.T) {
	b, client, reg := startBridge(t)
	ctx := context.Background()

	require.NoError(t, b.Reload(ctx, &Config{Devices: []DeviceConfig{
		{ID: "fan", Clusters: []ClusterConfig{{Type: cluster.NameOnOff}}},
	}}))
	require.Len(t, reg.devs, 1)
	assert.ErrorIs(t, client.deliver(t, stateTopic("lamp", "OnOff"), `{"on":true}`), ErrUnknownDevice)
	assert.NoError(t, client.deliver(t, stateTopic("fan", "OnOff"), `{"on":true}`))

	err := b.Reload(ctx, &Config{Devices: []DeviceConfig{{ID: ""}}})
	require.Error(t, err)
	assert.Len(t, reg.devs, 1, "invalid reload keeps the current devices")

	b.Stop(ctx)
	assert.Empty(t, reg.devs)
	assert.Empty(t, client.handlers)
	assert.ErrorIs(t, b.Reload(ctx, &Config{}), ErrNotStarted)
}

func TestBridge_FollowsBrokerReachability(t *testing.T) {
	client := &statefulClient{fakeClient: newFakeClient(), state: reactive.New(true)}
	reg := &fakeRegistry{}
	b := New(client, reg, nil)
	ctx := context.Background()
	require.NoError(t, b.Start(ctx, testConfig()))

	lamp := reg.get("mqtt:lamp")
	require.NotNil(t, lamp)
	assert.Equal(t, device.StatusOnline, lamp.Status().Current())

	client.state.Set(false)
	for _, d := range reg.devs {
		assert.Equal(t, device.StatusOffline, d.Status().Current(), d.ID())
	}

	// Devices declared while the broker is away start offline.
	require.NoError(t, b.Reload(ctx, &Config{Devices: []DeviceConfig{
		{ID: "fan", Clusters: []ClusterConfig{{Type: cluster.NameOnOff}}},
	}}))
	assert.Equal(t, device.StatusOffline, reg.get("mqtt:fan").Status().Current())

	client.state.Set(true)
	assert.Equal(t, device.StatusOnline, reg.get("mqtt:fan").Status().Current())

	b.Stop(ctx)
	assert.Equal(t, 0, client.state.SubscriberCount())
}

func TestDeviceID(t *testing.T) {
	assert.Equal(t, "mqtt:lamp", DeviceID("lamp"))
}
