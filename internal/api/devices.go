package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dlashua/govee2mqtt/internal/audit"
	"github.com/dlashua/govee2mqtt/internal/device"
)

// handleListDevices returns every registered device with its last
// published attributes.
//
// Query parameters:
//   - boosted: "true" or "false" to filter on boosted polling
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.List()

	if v := r.URL.Query().Get("boosted"); v != "" {
		want, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "boosted must be true or false")
			return
		}
		filtered := make([]device.Device, 0, len(devices))
		for _, d := range devices {
			if s.boosted.Contains(d.ID) == want {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device":  dev,
		"boosted": s.boosted.Contains(id),
	})
}

// handleListBoosted returns the IDs currently on the boosted schedule.
func (s *Server) handleListBoosted(w http.ResponseWriter, _ *http.Request) {
	ids := s.boosted.IDs()
	writeJSON(w, http.StatusOK, map[string]any{"devices": ids, "count": len(ids)})
}

// handleListCommands returns paginated command journal entries.
//
// Query parameters:
//   - device_id: filter by device
//   - command: filter by vendor command (turn, brightness, color)
//   - outcome: filter by outcome (ok, error)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command journal not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		DeviceID: q.Get("device_id"),
		Command:  q.Get("command"),
		Outcome:  q.Get("outcome"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list command logs", "error", err)
		writeInternalError(w, "failed to list command logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
