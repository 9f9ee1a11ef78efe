package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homekit-room-sync/internal/audit"
)

// handleListHistory returns audit log entries, newest first. Under
// /bridges/{bridge} the entries are limited to that bridge.
//
// Query parameters: action, limit, offset.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "history is not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Action: q.Get("action")}
	if bridge := chi.URLParam(r, "bridge"); bridge != "" {
		filter.EntityType = audit.EntityBridge
		filter.EntityID = bridge
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	res, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing history", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// intParam parses an optional integer query parameter; "" is 0.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
