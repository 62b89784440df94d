package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/location"
	"github.com/nerrad567/gray-logic-hub/internal/presence"
	"github.com/nerrad567/gray-logic-hub/internal/thermostat"
	"github.com/nerrad567/gray-logic-hub/internal/tracker"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by infrastructure the health endpoint checks.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server. Registry and Engine are
// required; endpoints backed by a nil optional dependency answer 503.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Registry  *device.Registry
	Groups    *device.Groups
	Palettes  *device.Palettes
	Engine    *automation.Engine
	Trackers  *tracker.Set
	StatusLog *device.SQLiteStatusHistoryRepository
	Presence  *presence.Detector
	Locations *location.Service
	Heating   *thermostat.Orchestrator

	// Hub is shared with the engine so scene runs reach WebSocket clients.
	// A nil Hub gets a private one.
	Hub *Hub

	// Checks are run by GET /api/v1/health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API and WebSocket server of the hub.
//
// It is created with New, started with Start and stopped with Close.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	registry  *device.Registry
	groups    *device.Groups
	palettes  *device.Palettes
	engine    *automation.Engine
	trackers  *tracker.Set
	statusLog *device.SQLiteStatusHistoryRepository
	presence  *presence.Detector
	locations *location.Service
	heating   *thermostat.Orchestrator
	checks    map[string]HealthChecker
	version   string

	hub         *Hub
	router      http.Handler
	server      *http.Server
	listener    net.Listener
	cancel      context.CancelFunc
	unsubscribe func()
}

// New creates an API server. Nothing listens until Start.
//
// Returns:
//   - *Server: Configured server
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("scene engine is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		registry:  deps.Registry,
		groups:    deps.Groups,
		palettes:  deps.Palettes,
		engine:    deps.Engine,
		trackers:  deps.Trackers,
		statusLog: deps.StatusLog,
		presence:  deps.Presence,
		locations: deps.Locations,
		heating:   deps.Heating,
		checks:    deps.Checks,
		version:   deps.Version,
		hub:       deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	s.hub.SetSnapshot(s.channelSnapshot)
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the router. Tests serve it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub the server broadcasts on.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background. Device list
// changes are relayed to WebSocket clients until Close.
//
// Parameters:
//   - ctx: Parent context for background work
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	srvCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.hub.Run(srvCtx)

	stopDevices := s.relayDevices()
	stopVariables := s.relayVariables()
	s.unsubscribe = func() {
		stopDevices()
		stopVariables()
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		cancel()
		s.unsubscribe()
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the relay and the hub, then waits up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
