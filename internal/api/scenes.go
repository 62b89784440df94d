package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
)

// defaultExecutionLimit is the page size of the execution log.
const defaultExecutionLimit = 50

// isValidationError reports whether err came from scene validation.
func isValidationError(err error) bool {
	return errors.Is(err, automation.ErrInvalidScene) ||
		errors.Is(err, automation.ErrInvalidTitle) ||
		errors.Is(err, automation.ErrInvalidTrigger) ||
		errors.Is(err, automation.ErrInvalidCondition) ||
		errors.Is(err, automation.ErrInvalidAction)
}

// handleListScenes returns every scene in creation order.
func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	scenes := s.engine.Scenes().ListScenes()
	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes, "count": len(scenes)})
}

// handleGetScene returns a single scene by ID.
func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeBadRequest(w, "invalid scene ID")
		return
	}

	scene, ok := s.engine.Scenes().GetScene(id)
	if !ok {
		writeNotFound(w, "scene not found")
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

// handleCreateScene validates and stores a new scene.
func (s *Server) handleCreateScene(w http.ResponseWriter, r *http.Request) {
	var scene automation.Scene
	if err := decodeJSON(r, &scene); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	created, err := s.engine.Scenes().CreateScene(scene)
	if err != nil {
		if isValidationError(err) {
			writeValidationError(w, err)
			return
		}
		s.logger.Error("creating scene", "error", err)
		writeInternalError(w, "failed to create scene")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateScene replaces a scene, keeping its id and creation time.
func (s *Server) handleUpdateScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeBadRequest(w, "invalid scene ID")
		return
	}

	var scene automation.Scene
	if err := decodeJSON(r, &scene); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	updated, err := s.engine.Scenes().UpdateScene(id, scene)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, updated)
	case errors.Is(err, automation.ErrSceneNotFound):
		writeNotFound(w, "scene not found")
	case isValidationError(err):
		writeValidationError(w, err)
	default:
		s.logger.Error("updating scene", "scene_id", id, "error", err)
		writeInternalError(w, "failed to update scene")
	}
}

// handleDeleteScene removes a scene.
func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeBadRequest(w, "invalid scene ID")
		return
	}

	err := s.engine.Scenes().DeleteScene(id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, automation.ErrSceneNotFound):
		writeNotFound(w, "scene not found")
	default:
		s.logger.Error("deleting scene", "scene_id", id, "error", err)
		writeInternalError(w, "failed to delete scene")
	}
}

// handleTriggerScene runs a scene by hand. Only conditions flagged to be
// checked on manual runs apply. The response reports whether the scene ran
// and every action succeeded.
func (s *Server) handleTriggerScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeBadRequest(w, "invalid scene ID")
		return
	}
	if _, ok := s.engine.Scenes().GetScene(id); !ok {
		writeNotFound(w, "scene not found")
		return
	}

	success := s.engine.TriggerScene(r.Context(), id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"sceneId": id, "success": success})
}

// handleListSceneExecutions returns a scene's runs, newest first.
//
// Query parameters:
//   - limit: maximum number of entries (default 50)
func (s *Server) handleListSceneExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeBadRequest(w, "invalid scene ID")
		return
	}
	limit, ok := queryLimit(r, defaultExecutionLimit)
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}

	execs, err := s.engine.ListExecutions(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing scene executions", "scene_id", id, "error", err)
		writeInternalError(w, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs, "count": len(execs)})
}

// handleWebhook fires every scene with a webhook trigger of this name.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !validID(name) {
		writeBadRequest(w, "invalid webhook name")
		return
	}

	fired := s.engine.OnTrigger(r.Context(), automation.Trigger{
		Type:        automation.TriggerWebhook,
		WebhookName: name,
	}, false)
	s.logger.Info("webhook received", "name", name, "scenes", fired)
	writeJSON(w, http.StatusOK, map[string]any{"webhook": name, "scenes": fired})
}
