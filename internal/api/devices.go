package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// defaultStatusHistoryLimit is the page size of a device's status log.
const defaultStatusHistoryLimit = 100

// deviceView is the API representation of a device. Live devices carry
// their clusters; devices only known from the side table have none and
// report their stored status.
type deviceView struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Source        device.Source  `json:"source"`
	Status        device.Status  `json:"status"`
	Room          string         `json:"room,omitempty"`
	Clusters      []string       `json:"clusters"`
	State         map[string]any `json:"state,omitempty"`
	ManagementURL string         `json:"managementUrl,omitempty"`
	LastSeen      *time.Time     `json:"lastSeen,omitempty"`
}

// view builds the representation of the device with id from the live map
// and the side table. ok is false if neither knows it.
func (s *Server) view(id string, live *device.Device) (deviceView, bool) {
	rec, stored := s.registry.StoredDevice(id)
	if live == nil && !stored {
		return deviceView{}, false
	}

	v := deviceView{ID: id, Name: s.registry.DisplayName(id), Clusters: []string{}}
	if stored {
		v.Source = rec.Source
		v.Status = rec.Status
		v.Room = rec.Room
		lastSeen := rec.LastSeen
		v.LastSeen = &lastSeen
	}
	if live != nil {
		v.Source = live.Source()
		v.Status = live.Status().Current()
		v.ManagementURL = live.ManagementURL()
		seen := make(map[string]bool)
		for _, c := range live.AllClusters() {
			name := string(c.Name())
			if !seen[name] {
				seen[name] = true
				v.Clusters = append(v.Clusters, name)
			}
		}
		sort.Strings(v.Clusters)
		v.State = deviceState(live)
	}
	return v, true
}

// deviceViews renders a live device map ordered by id.
func (s *Server) deviceViews(devs map[string]*device.Device) []deviceView {
	ids := make([]string, 0, len(devs))
	for id := range devs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	views := make([]deviceView, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.view(id, devs[id]); ok {
			views = append(views, v)
		}
	}
	return views
}

// handleListDevices returns every device the hub has seen. Offline
// devices are included from the side table.
//
// Query parameters:
//   - room: only devices placed in this room
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if len(room) > maxIDLen {
		writeBadRequest(w, "room exceeds maximum length")
		return
	}

	live := s.registry.Devices().Current()
	ids := make([]string, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}
	for id := range s.registry.StoredDevices() {
		if _, ok := live[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	views := make([]deviceView, 0, len(ids))
	for _, id := range ids {
		v, ok := s.view(id, live[id])
		if !ok || (room != "" && v.Room != room) {
			continue
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeBadRequest(w, "invalid device ID")
		return
	}

	live, _ := s.registry.Get(id)
	v, ok := s.view(id, live)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// updateDeviceRequest is the body of PATCH /devices/{id}. Omitted fields
// are left unchanged; empty strings clear them.
type updateDeviceRequest struct {
	Name *string `json:"name"`
	Room *string `json:"room"`
	Icon string  `json:"icon"`
}

// handleUpdateDevice renames a device or moves it to another room.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeBadRequest(w, "invalid device ID")
		return
	}

	var req updateDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Name == nil && req.Room == nil {
		writeBadRequest(w, "nothing to update")
		return
	}

	if req.Name != nil {
		found, err := s.registry.UpdateDeviceName(id, *req.Name)
		if err != nil {
			s.logger.Error("renaming device", "device_id", id, "error", err)
			writeInternalError(w, "failed to update device")
			return
		}
		if !found {
			writeNotFound(w, "device not found")
			return
		}
	}
	if req.Room != nil {
		found, err := s.registry.UpdateDeviceRoom(id, *req.Room, req.Icon)
		if err != nil {
			s.logger.Error("moving device", "device_id", id, "error", err)
			writeInternalError(w, "failed to update device")
			return
		}
		if !found {
			writeNotFound(w, "device not found")
			return
		}
	}

	live, _ := s.registry.Get(id)
	v, _ := s.view(id, live)
	writeJSON(w, http.StatusOK, v)
}

// handleDeviceStatusHistory returns a device's online/offline transitions,
// newest first.
func (s *Server) handleDeviceStatusHistory(w http.ResponseWriter, r *http.Request) {
	if s.statusLog == nil {
		writeUnavailable(w, "status history")
		return
	}
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeBadRequest(w, "invalid device ID")
		return
	}
	limit, ok := queryLimit(r, defaultStatusHistoryLimit)
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}

	entries, err := s.statusLog.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("reading status history", "device_id", id, "error", err)
		writeInternalError(w, "failed to read status history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleListRooms returns the rooms referenced by at least one device.
func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.registry.Rooms()
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "count": len(rooms)})
}
