package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the checks behind GET /api/v1/health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get(s.wsPath(), s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/webhooks/{name}", s.handleWebhook)

		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", s.handleListScenes)
			r.Post("/", s.handleCreateScene)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetScene)
				r.Put("/", s.handleUpdateScene)
				r.Delete("/", s.handleDeleteScene)
				r.Post("/trigger", s.handleTriggerScene)
				r.Get("/executions", s.handleListSceneExecutions)
			})
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handleUpdateDevice)
				r.Get("/status-history", s.handleDeviceStatusHistory)
			})
		})
		r.Get("/rooms", s.handleListRooms)

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Post("/", s.handleCreateGroup)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetGroup)
				r.Put("/", s.handleUpdateGroup)
				r.Delete("/", s.handleDeleteGroup)
			})
		})

		r.Route("/palettes", func(r chi.Router) {
			r.Get("/", s.handleListPalettes)
			r.Post("/", s.handleCreatePalette)
			r.Put("/{id}", s.handleUpdatePalette)
			r.Delete("/{id}", s.handleDeletePalette)
		})

		r.Route("/variables", func(r chi.Router) {
			r.Get("/", s.handleListVariables)
			r.Get("/{name}", s.handleGetVariable)
			r.Put("/{name}", s.handleSetVariable)
			r.Delete("/{name}", s.handleDeleteVariable)
		})

		r.Get("/history/{kind}/{deviceID}", s.handleHistory)
		r.Get("/thermostat", s.handleThermostat)
		r.Get("/presence", s.handlePresence)

		r.Route("/locations", func(r chi.Router) {
			r.Get("/devices", s.handleLocationDevices)
			r.Get("/devices/{id}/history", s.handleLocationHistory)
			r.Get("/targets", s.handleListTargets)
			r.Put("/targets/{id}", s.handleSetTarget)
			r.Delete("/targets/{id}", s.handleDeleteTarget)
		})
	})

	return r
}

// wsPath returns the configured WebSocket path, /ws by default.
func (s *Server) wsPath() string {
	if s.wsCfg.Path != "" {
		return s.wsCfg.Path
	}
	return "/ws"
}

// handleHealth checks every registered component. Any failure turns the
// response into a 503 listing the failing components.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make(map[string]string, len(names))
	status, code := "ok", http.StatusOK
	for _, name := range names {
		if err := s.checks[name].HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
		"websocket":  map[string]int{"clients": s.hub.ClientCount()},
	})
}
