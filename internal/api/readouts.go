package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/location"
	"github.com/nerrad567/gray-logic-hub/internal/tracker"
)

// defaultLocationHistoryLimit is the page size of a device's position log.
const defaultLocationHistoryLimit = 100

// parseSince reads the since query parameter as an RFC 3339 time or as a
// duration back from now ("24h").
func parseSince(raw string, now time.Time) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return now.Add(-d), true
	}
	return time.Time{}, false
}

// handleHistory returns a device's tracker history of one kind, newest
// first.
//
// Query parameters:
//   - since: RFC 3339 time or a duration such as 24h
//   - limit: maximum number of rows (default 100, max 1000)
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.trackers == nil {
		writeUnavailable(w, "trackers")
		return
	}
	kind := chi.URLParam(r, "kind")
	deviceID := chi.URLParam(r, "deviceID")
	if !validID(deviceID) {
		writeBadRequest(w, "invalid device ID")
		return
	}

	since, ok := parseSince(r.URL.Query().Get("since"), time.Now())
	if !ok {
		writeBadRequest(w, "since must be an RFC 3339 time or a duration")
		return
	}
	limit, ok := queryLimit(r, 0)
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}

	rows, err := s.trackers.History(r.Context(), kind, deviceID, tracker.HistoryQuery{Since: since, Limit: limit})
	if err != nil {
		if errors.Is(err, tracker.ErrUnknownKind) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		s.logger.Error("reading tracker history", "kind", kind, "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "deviceId": deviceID, "history": rows})
}

// handleThermostat returns the masters and slaves and whether any slave
// currently needs heat.
func (s *Server) handleThermostat(w http.ResponseWriter, _ *http.Request) {
	if s.heating == nil {
		writeUnavailable(w, "thermostat orchestration")
		return
	}
	writeJSON(w, http.StatusOK, s.heating.Status())
}

// handlePresence returns every reporting host and the household summary.
// anyoneHome is null until a host has reported.
func (s *Server) handlePresence(w http.ResponseWriter, _ *http.Request) {
	if s.presence == nil {
		writeUnavailable(w, "presence")
		return
	}
	var anyone *bool
	if home, known := s.presence.AnyoneHome(); known {
		anyone = &home
	}
	writeJSON(w, http.StatusOK, map[string]any{"hosts": s.presence.Hosts(), "anyoneHome": anyone})
}

// handleLocationDevices returns the tracked devices with their last fix.
func (s *Server) handleLocationDevices(w http.ResponseWriter, r *http.Request) {
	if s.locations == nil {
		writeUnavailable(w, "location")
		return
	}
	devices, err := s.locations.Devices(r.Context())
	if err != nil {
		s.logger.Error("listing location devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleLocationHistory returns a device's position reports, newest first.
func (s *Server) handleLocationHistory(w http.ResponseWriter, r *http.Request) {
	if s.locations == nil {
		writeUnavailable(w, "location")
		return
	}
	id := chi.URLParam(r, "id")
	limit, ok := queryLimit(r, defaultLocationHistoryLimit)
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	updates, err := s.locations.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("reading location history", "device_id", id, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": updates, "count": len(updates)})
}

// handleListTargets returns the configured location targets.
func (s *Server) handleListTargets(w http.ResponseWriter, _ *http.Request) {
	if s.locations == nil {
		writeUnavailable(w, "location")
		return
	}
	targets := s.locations.Targets()
	writeJSON(w, http.StatusOK, map[string]any{"targets": targets, "count": len(targets)})
}

// handleSetTarget creates or replaces the target named in the path.
func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	if s.locations == nil {
		writeUnavailable(w, "location")
		return
	}
	var t location.Target
	if err := decodeJSON(r, &t); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	t.ID = chi.URLParam(r, "id")

	err := s.locations.SetTarget(t)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, t)
	case errors.Is(err, location.ErrInvalidID),
		errors.Is(err, location.ErrInvalidName),
		errors.Is(err, location.ErrInvalidCoordinates):
		writeValidationError(w, err)
	default:
		s.logger.Error("setting location target", "target_id", t.ID, "error", err)
		writeInternalError(w, "failed to save target")
	}
}

// handleDeleteTarget removes a location target.
func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	if s.locations == nil {
		writeUnavailable(w, "location")
		return
	}
	err := s.locations.DeleteTarget(chi.URLParam(r, "id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, location.ErrTargetNotFound):
		writeNotFound(w, "target not found")
	default:
		s.logger.Error("deleting location target", "error", err)
		writeInternalError(w, "failed to delete target")
	}
}
