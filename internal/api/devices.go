package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// defaultEventLimit is the page size for /devices/{channel}/events.
const defaultEventLimit = 50

// handleListDevices returns a snapshot of every configured device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.pool.Snapshots()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleDeviceStats returns online/offline counts.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Stats())
}

// handleGetDevice returns one device snapshot.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelParam(w, r)
	if !ok {
		return
	}
	snap, err := s.pool.Snapshot(ch)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleListDeviceEvents returns recent events for a channel, newest first.
// ?limit caps the page (default 50).
func (s *Server) handleListDeviceEvents(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelParam(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "event history is not enabled")
		return
	}
	if _, err := s.pool.Snapshot(ch); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.history.ListByChannel(r.Context(), ch, limit)
	if err != nil {
		s.logger.Error("listing device events failed", "channel", ch, "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": ch,
		"events":  events,
		"count":   len(events),
	})
}

func channelParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	ch, err := strconv.Atoi(chi.URLParam(r, "channel"))
	if err != nil {
		writeBadRequest(w, "channel must be an integer")
		return 0, false
	}
	return ch, true
}
