package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// handleListGroups returns every device group.
func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	if s.groups == nil {
		writeUnavailable(w, "groups")
		return
	}
	groups := s.groups.List()
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups, "count": len(groups)})
}

// handleGetGroup returns a single group by ID.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	if s.groups == nil {
		writeUnavailable(w, "groups")
		return
	}
	grp, ok := s.groups.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "group not found")
		return
	}
	writeJSON(w, http.StatusOK, grp)
}

// writeGroupError maps group store errors to responses.
func (s *Server) writeGroupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrGroupNameTaken):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, device.ErrInvalidGroup):
		writeValidationError(w, err)
	default:
		s.logger.Error("writing group", "error", err)
		writeInternalError(w, "failed to save group")
	}
}

// handleCreateGroup stores a new group. Names are unique.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	if s.groups == nil {
		writeUnavailable(w, "groups")
		return
	}
	var grp device.Group
	if err := decodeJSON(r, &grp); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	id, err := s.groups.Create(grp)
	if err != nil {
		s.writeGroupError(w, err)
		return
	}
	created, _ := s.groups.Get(id)
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateGroup replaces a group.
func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	if s.groups == nil {
		writeUnavailable(w, "groups")
		return
	}
	id := chi.URLParam(r, "id")
	var grp device.Group
	if err := decodeJSON(r, &grp); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	found, err := s.groups.Update(id, grp)
	if err != nil {
		s.writeGroupError(w, err)
		return
	}
	if !found {
		writeNotFound(w, "group not found")
		return
	}
	updated, _ := s.groups.Get(id)
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteGroup removes a group.
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if s.groups == nil {
		writeUnavailable(w, "groups")
		return
	}
	found, err := s.groups.Delete(chi.URLParam(r, "id"))
	if err != nil {
		s.writeGroupError(w, err)
		return
	}
	if !found {
		writeNotFound(w, "group not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListPalettes returns every colour palette.
func (s *Server) handleListPalettes(w http.ResponseWriter, _ *http.Request) {
	if s.palettes == nil {
		writeUnavailable(w, "palettes")
		return
	}
	palettes := s.palettes.List()
	writeJSON(w, http.StatusOK, map[string]any{"palettes": palettes, "count": len(palettes)})
}

// writePaletteError maps palette store errors to responses.
func (s *Server) writePaletteError(w http.ResponseWriter, err error) {
	if errors.Is(err, device.ErrInvalidPalette) {
		writeValidationError(w, err)
		return
	}
	s.logger.Error("writing palette", "error", err)
	writeInternalError(w, "failed to save palette")
}

// handleCreatePalette stores a new palette.
func (s *Server) handleCreatePalette(w http.ResponseWriter, r *http.Request) {
	if s.palettes == nil {
		writeUnavailable(w, "palettes")
		return
	}
	var pal device.Palette
	if err := decodeJSON(r, &pal); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	id, err := s.palettes.Create(pal)
	if err != nil {
		s.writePaletteError(w, err)
		return
	}
	created, _ := s.palettes.Get(id)
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdatePalette replaces a palette.
func (s *Server) handleUpdatePalette(w http.ResponseWriter, r *http.Request) {
	if s.palettes == nil {
		writeUnavailable(w, "palettes")
		return
	}
	id := chi.URLParam(r, "id")
	var pal device.Palette
	if err := decodeJSON(r, &pal); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	found, err := s.palettes.Update(id, pal)
	if err != nil {
		s.writePaletteError(w, err)
		return
	}
	if !found {
		writeNotFound(w, "palette not found")
		return
	}
	updated, _ := s.palettes.Get(id)
	writeJSON(w, http.StatusOK, updated)
}

// handleDeletePalette removes a palette.
func (s *Server) handleDeletePalette(w http.ResponseWriter, r *http.Request) {
	if s.palettes == nil {
		writeUnavailable(w, "palettes")
		return
	}
	found, err := s.palettes.Delete(chi.URLParam(r, "id"))
	if err != nil {
		s.writePaletteError(w, err)
		return
	}
	if !found {
		writeNotFound(w, "palette not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
