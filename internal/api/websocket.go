package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/location"
	"github.com/nerrad567/gray-logic-hub/internal/presence"
)

// Channels broadcast by the hub.
const (
	ChannelDevicesChanged = "devices.changed"
	ChannelDeviceUpdated  = "device.updated"
	ChannelSceneExecuted  = "scene.executed"

	// ChannelVariablesChanged carries a variableBody per change.
	ChannelVariablesChanged = "variables.changed"

	// ChannelAll subscribes a client to every channel.
	ChannelAll = "*"
)

// knownChannels are the channels a client may subscribe to by name.
var knownChannels = []string{
	ChannelDevicesChanged,
	ChannelDeviceUpdated,
	ChannelSceneExecuted,
	ChannelVariablesChanged,
	presence.ChannelPresence,
	location.ChannelLocation,
}

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// Keepalive defaults for an unset websocket section.
const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// SnapshotFunc returns the current state of a channel, sent to a client
// straight after it subscribes. ok is false for event-only channels.
type SnapshotFunc func(channel string) (payload any, ok bool)

// Hub fans hub events out to WebSocket clients by channel.
//
// Thread Safety: all methods are safe for concurrent use. Broadcast never
// blocks on a slow client; frames for a full client buffer are dropped.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	snapshot   SnapshotFunc
	snapshotMu sync.RWMutex
}

// WSClient is one connected WebSocket peer.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels channelSet
}

// channelSet is a client's subscriptions. The wildcard matches everything.
type channelSet struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

func (c *channelSet) add(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set == nil {
		c.set = make(map[string]struct{}, len(names))
	}
	for _, n := range names {
		c.set[n] = struct{}{}
	}
}

func (c *channelSet) remove(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		delete(c.set, n)
	}
}

func (c *channelSet) has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.set[ChannelAll]; ok {
		return true
	}
	_, ok := c.set[name]
	return ok
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a WebSocket hub.
//
// Parameters:
//   - cfg: WebSocket section of the configuration (keepalive, frame size)
//   - logger: Structured logger
//
// Returns:
//   - *Hub: Hub with no clients; call Run to tie its lifetime to a context
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// SetSnapshot installs the function that supplies a channel's current
// state to newly subscribed clients.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.snapshotMu.Lock()
	h.snapshot = fn
	h.snapshotMu.Unlock()
}

func (h *Hub) snapshotOf(channel string) (any, bool) {
	h.snapshotMu.RLock()
	fn := h.snapshot
	h.snapshotMu.RUnlock()
	if fn == nil {
		return nil, false
	}
	return fn(channel)
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// unregister removes a client. Only the caller that removes the client
// from the map closes its send channel.
func (h *Hub) unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast sends an event to all clients subscribed to channel.
//
// Parameters:
//   - channel: Channel name, e.g. ChannelSceneExecuted
//   - payload: JSON-serialisable event body
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	// Snapshot the client list so per-client locks are never taken under
	// the hub lock.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.channels.has(channel) {
			client.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// wsTimings returns the ping interval and pong wait, falling back to the
// defaults for unset values.
func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping, pong = defaultPingInterval, defaultPongTimeout
	if cfg.PingInterval > 0 {
		ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		pong = time.Duration(cfg.PongTimeout) * time.Second
	}
	return ping, pong
}

func encodeFrame(msg WSMessage) ([]byte, error) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return json.Marshal(msg)
}

// deviceWatch is the change listener attached to one live device.
type deviceWatch struct {
	dev  *device.Device
	stop []func()
}

// relayDevices broadcasts the device list on ChannelDevicesChanged
// whenever a source adds or removes devices, and a single device view on
// ChannelDeviceUpdated whenever a live device's clusters or status change.
// Listeners follow the map: removed or replaced devices are detached.
func (s *Server) relayDevices() func() {
	var (
		mu       sync.Mutex
		watching = make(map[string]deviceWatch)
	)

	unsubscribe := s.registry.Devices().Subscribe(func(devs map[string]*device.Device, initial bool) {
		mu.Lock()
		for id, w := range watching {
			if devs[id] != w.dev {
				for _, stop := range w.stop {
					stop()
				}
				delete(watching, id)
			}
		}
		for id, d := range devs {
			if _, ok := watching[id]; ok {
				continue
			}
			watching[id] = deviceWatch{dev: d, stop: s.watchDevice(d)}
		}
		mu.Unlock()

		if !initial {
			s.hub.Broadcast(ChannelDevicesChanged, s.deviceViews(devs))
		}
	})

	return func() {
		unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		for id, w := range watching {
			for _, stop := range w.stop {
				stop()
			}
			delete(watching, id)
		}
	}
}

// watchDevice attaches the cluster and status listeners for d.
func (s *Server) watchDevice(d *device.Device) []func() {
	return []func(){
		d.OnChange().Listen(func(struct{}) { s.broadcastDevice(d) }),
		d.Status().Subscribe(func(_ device.Status, initial bool) {
			if !initial {
				s.broadcastDevice(d)
			}
		}),
	}
}

// broadcastDevice sends the view of d if it is still the live device
// for its id.
func (s *Server) broadcastDevice(d *device.Device) {
	if s.registry.Devices().Current()[d.ID()] != d {
		return
	}
	if v, ok := s.view(d.ID(), d); ok {
		s.hub.Broadcast(ChannelDeviceUpdated, v)
	}
}

// relayVariables broadcasts every variable change on
// ChannelVariablesChanged. It is a no-op when the engine has no variables.
func (s *Server) relayVariables() func() {
	vars := s.engine.Variables()
	if vars == nil {
		return func() {}
	}
	vars.OnChange(func(name string, value bool) {
		s.hub.Broadcast(ChannelVariablesChanged, variableBody{Name: name, Value: value})
	})
	return func() { vars.OnChange(nil) }
}

// channelSnapshot supplies the current state to new subscribers of the
// device list and variables channels. Other channels carry events only.
func (s *Server) channelSnapshot(channel string) (any, bool) {
	switch channel {
	case ChannelDevicesChanged:
		return s.deviceViews(s.registry.Devices().Current()), true
	case ChannelVariablesChanged:
		if vars := s.engine.Variables(); vars != nil {
			return vars.All(), true
		}
	}
	return nil, false
}

// handleWebSocket upgrades the connection. Clients choose what they
// receive with subscribe messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
	s.hub.register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval, pongWait := wsTimings(cfg)
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
	extend() //nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application frames count as liveness too.
		extend() //nolint:errcheck // Best-effort deadline reset
		c.handleFrame(frame)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval, pongWait := wsTimings(cfg)
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // Best-effort close frame
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(pongWait)) //nolint:errcheck // Write error caught below
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(pongWait)) //nolint:errcheck // Ping error caught below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleFrame(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		channels, ok := c.decodeChannels(msg)
		if !ok {
			return
		}
		c.channels.add(channels)
		c.hub.logger.Info("websocket client subscribed", "channels", channels)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": channels})
		c.sendSnapshots(channels)
	case WSTypeUnsubscribe:
		channels, ok := c.decodeChannels(msg)
		if !ok {
			return
		}
		c.channels.remove(channels)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// decodeChannels extracts and checks the channel list of a subscribe or
// unsubscribe frame, replying with an error when it is unusable.
func (c *WSClient) decodeChannels(msg WSMessage) ([]string, bool) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return nil, false
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil || len(sub.Channels) == 0 {
		c.sendError(msg.ID, "payload must list channels")
		return nil, false
	}
	for _, ch := range sub.Channels {
		if ch != ChannelAll && !slices.Contains(knownChannels, ch) {
			c.sendError(msg.ID, "unknown channel: "+ch)
			return nil, false
		}
	}
	return sub.Channels, true
}

func (c *WSClient) sendSnapshots(channels []string) {
	names := channels
	if slices.Contains(channels, ChannelAll) {
		names = knownChannels
	}
	for _, ch := range names {
		payload, ok := c.hub.snapshotOf(ch)
		if !ok {
			continue
		}
		if data, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: ch, Payload: payload}); err == nil {
			c.trySend(data)
		}
	}
}

// trySend queues a frame. Full buffers drop the frame, and a channel
// closed by a concurrent unregister is tolerated.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := encodeFrame(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
