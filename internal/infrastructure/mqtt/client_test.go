package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
)

const testBrokerAddr = "127.0.0.1:1883"

// testConfig returns an MQTT configuration pointing at a local broker.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectTestClient connects to the local broker, skipping the test when
// none is listening.
func connectTestClient(t *testing.T, clientID string) *Client {
	t.Helper()

	conn, err := net.DialTimeout("tcp", testBrokerAddr, 500*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s: %v", testBrokerAddr, err)
	}
	conn.Close() //nolint:errcheck // Reachability check only

	client, err := Connect(testConfig(clientID))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

// =============================================================================
// Broker-free Tests
// =============================================================================

func TestCloseUninitialised(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on uninitialised client error = %v, want nil", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestValidationBeforeConnectionCheck(t *testing.T) {
	client := &Client{}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"publish empty topic", func() error { return client.Publish("", nil, 1, false) }, ErrInvalidTopic},
		{"publish bad qos", func() error { return client.Publish("a/b", nil, 3, false) }, ErrInvalidQoS},
		{"publish oversize", func() error { return client.Publish("a/b", make([]byte, maxPayloadSize+1), 1, false) }, ErrPublishFailed},
		{"publish disconnected", func() error { return client.Publish("a/b", nil, 1, false) }, ErrNotConnected},
		{"subscribe empty topic", func() error { return client.Subscribe("", 1, noop) }, ErrInvalidTopic},
		{"subscribe bad qos", func() error { return client.Subscribe("a/b", 3, noop) }, ErrInvalidQoS},
		{"subscribe nil handler", func() error { return client.Subscribe("a/b", 1, nil) }, ErrSubscribeFailed},
		{"subscribe disconnected", func() error { return client.Subscribe("a/b", 1, noop) }, ErrNotConnected},
		{"unsubscribe empty topic", func() error { return client.Unsubscribe("") }, ErrInvalidTopic},
		{"unsubscribe disconnected", func() error { return client.Unsubscribe("a/b") }, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHealthCheckUninitialised(t *testing.T) {
	client := &Client{}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var got statusPayload
	if err := json.Unmarshal(buildStatusPayload("hub-1", statusOffline, reasonGraceful), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != "offline" || got.ClientID != "hub-1" || got.Reason != "graceful_shutdown" {
		t.Errorf("payload = %+v", got)
	}
	if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", got.Timestamp, err)
	}

	online := string(buildStatusPayload("hub-1", statusOnline, ""))
	if strings.Contains(online, "reason") {
		t.Errorf("online payload should omit reason: %s", online)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		cfg  config.MQTTBrokerConfig
		want string
	}{
		{config.MQTTBrokerConfig{Host: "localhost", Port: 1883}, "tcp://localhost:1883"},
		{config.MQTTBrokerConfig{Host: "broker.lan", Port: 8883, TLS: true}, "ssl://broker.lan:8883"},
	}
	for _, tt := range tests {
		if got := brokerURL(tt.cfg); got != tt.want {
			t.Errorf("brokerURL(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("hub-opts")
	cfg.Auth = config.MQTTAuthConfig{Username: "hub", Password: "secret"}

	opts := buildClientOptions(cfg)
	if opts.ClientID != "hub-opts" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "hub" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}

	configureLWT(opts, "hub-opts")
	if !opts.WillEnabled || !opts.WillRetained || opts.WillTopic != (Topics{}).SystemStatus() {
		t.Errorf("will = enabled:%v retained:%v topic:%q", opts.WillEnabled, opts.WillRetained, opts.WillTopic)
	}
	if !strings.Contains(string(opts.WillPayload), reasonUnexpected) {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestWrapHandlerRecoversPanic(t *testing.T) {
	client := &Client{}
	handler := client.wrapHandler(func(string, []byte) error { panic("boom") })

	// Must not propagate.
	handler(nil, fakeMessage{topic: "graylogic/test", payload: []byte("x")})
}

// fakeMessage implements pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (fakeMessage) Duplicate() bool   { return false }
func (fakeMessage) Qos() byte         { return 1 }
func (fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string   { return m.topic }
func (fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte { return m.payload }
func (fakeMessage) Ack()              {}

// =============================================================================
// Broker Tests
// =============================================================================

func TestConnectAndClose(t *testing.T) {
	client := connectTestClient(t, "graylogic-hub-test")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if !client.State().Current() {
		t.Error("State() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() || client.State().Current() {
		t.Error("client still reports connected after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestStateNotifiesOnClose(t *testing.T) {
	client := connectTestClient(t, "graylogic-hub-test-state")

	var mu sync.Mutex
	var seen []bool
	unsubscribe := client.State().Subscribe(func(v bool, _ bool) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	defer unsubscribe()

	client.Close() //nolint:errcheck // closing is the action under test

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 || seen[0] != true || seen[len(seen)-1] != false {
		t.Errorf("state sequence = %v, want true ... false", seen)
	}
}

func TestSubscriptionsTracked(t *testing.T) {
	client := connectTestClient(t, "graylogic-hub-test-subs")
	handler := func(string, []byte) error { return nil }

	topics := []string{
		Topics{}.AllPresence(),
		Topics{}.AllLocations(),
		Topics{}.AllBridgeStates(),
	}
	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	got := client.Subscriptions()
	if len(got) != 3 {
		t.Fatalf("Subscriptions() = %v, want 3 topics", got)
	}

	if err := client.Unsubscribe(Topics{}.AllLocations()); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	for _, topic := range client.Subscriptions() {
		if topic == (Topics{}).AllLocations() {
			t.Error("unsubscribed topic is still tracked")
		}
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	pub := connectTestClient(t, "graylogic-hub-test-pub")
	sub := connectTestClient(t, "graylogic-hub-test-sub")

	received := make(chan string, 4)
	err := sub.Subscribe("graylogic/test/+/state", 1, func(topic string, payload []byte) error {
		received <- topic + " " + string(payload)
		return errors.New("handler errors are logged only")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Let the subscription settle on the broker.
	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishJSON("graylogic/test/lamp/state", map[string]bool{"on": true}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case got := <-received:
		if got != `graylogic/test/lamp/state {"on":true}` {
			t.Errorf("received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

func TestPublishPayloadSizes(t *testing.T) {
	client := connectTestClient(t, "graylogic-hub-test-sizes")

	if err := client.Publish("graylogic/test/empty", nil, 1, false); err != nil {
		t.Errorf("Publish() with nil payload error = %v", err)
	}
	if err := client.Publish("graylogic/test/large", make([]byte, 64*1024), 1, false); err != nil {
		t.Errorf("Publish() with 64KB payload error = %v", err)
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{"Presence", func() string { return Topics{}.Presence("phone-alex") }, "graylogic/presence/phone-alex"},
		{"Location", func() string { return Topics{}.Location("phone-alex") }, "graylogic/location/phone-alex"},
		{"BridgeState", func() string { return Topics{}.BridgeState("plug-kitchen", "OnOff") }, "graylogic/bridge/mqtt/state/plug-kitchen/OnOff"},
		{"BridgeCommand", func() string { return Topics{}.BridgeCommand("plug-kitchen", "OnOff") }, "graylogic/bridge/mqtt/command/plug-kitchen/OnOff"},
		{"Notify", func() string { return Topics{}.Notify() }, "graylogic/notify"},
		{"CoreEvent", func() string { return Topics{}.CoreEvent("host_arrival") }, "graylogic/core/event/host_arrival"},
		{"SystemStatus", func() string { return Topics{}.SystemStatus() }, "graylogic/system/status"},
		{"AllPresence", func() string { return Topics{}.AllPresence() }, "graylogic/presence/+"},
		{"AllLocations", func() string { return Topics{}.AllLocations() }, "graylogic/location/+"},
		{"AllBridgeStates", func() string { return Topics{}.AllBridgeStates() }, "graylogic/bridge/mqtt/state/+/+"},
		{"AllTopics", func() string { return Topics{}.AllTopics() }, "graylogic/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.builder(); got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, got, tt.expected)
			}
		})
	}
}

func TestSegment(t *testing.T) {
	topic := "graylogic/bridge/mqtt/state/plug-kitchen/OnOff"
	tests := []struct {
		i      int
		want   string
		wantOK bool
	}{
		{0, "graylogic", true},
		{4, "plug-kitchen", true},
		{-1, "OnOff", true},
		{-2, "plug-kitchen", true},
		{6, "", false},
		{-7, "", false},
	}
	for _, tt := range tests {
		got, ok := Segment(topic, tt.i)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Segment(%d) = %q, %v; want %q, %v", tt.i, got, ok, tt.want, tt.wantOK)
		}
	}
}
