package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
)

// variableBody is the request and response body of a single variable.
type variableBody struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

func (s *Server) variables(w http.ResponseWriter) (*automation.Variables, bool) {
	vars := s.engine.Variables()
	if vars == nil {
		writeUnavailable(w, "variables")
		return nil, false
	}
	return vars, true
}

// handleListVariables returns every variable that has been set.
func (s *Server) handleListVariables(w http.ResponseWriter, _ *http.Request) {
	vars, ok := s.variables(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variables": vars.All()})
}

// handleGetVariable returns one variable. Unset variables read as false.
func (s *Server) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	vars, ok := s.variables(w)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	writeJSON(w, http.StatusOK, variableBody{Name: name, Value: vars.Get(name)})
}

// handleSetVariable sets a variable from a {"value": bool} body.
func (s *Server) handleSetVariable(w http.ResponseWriter, r *http.Request) {
	vars, ok := s.variables(w)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	var body struct {
		Value *bool `json:"value"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if body.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	if err := vars.Set(name, *body.Value); err != nil {
		if errors.Is(err, automation.ErrInvalidVariable) {
			writeValidationError(w, err)
			return
		}
		s.logger.Error("setting variable", "name", name, "error", err)
		writeInternalError(w, "failed to set variable")
		return
	}
	writeJSON(w, http.StatusOK, variableBody{Name: name, Value: *body.Value})
}

// handleDeleteVariable unsets a variable.
func (s *Server) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	vars, ok := s.variables(w)
	if !ok {
		return
	}
	if err := vars.Delete(chi.URLParam(r, "name")); err != nil {
		if errors.Is(err, automation.ErrInvalidVariable) {
			writeValidationError(w, err)
			return
		}
		s.logger.Error("deleting variable", "error", err)
		writeInternalError(w, "failed to delete variable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
