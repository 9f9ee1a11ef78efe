package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homekit-room-sync/internal/bridgeconfig"
	"github.com/nerrad567/homekit-room-sync/internal/roomsync"
)

// bridgeResponse describes one configured bridge.
type bridgeResponse struct {
	Bridge      string                  `json:"bridge"`
	Title       string                  `json:"title"`
	DefaultRoom *string                 `json:"default_room"`
	Loaded      bool                    `json:"loaded"`
	LastResult  *roomsync.ResultPayload `json:"last_result,omitempty"`
}

// changeResponse is one rewritten accessory in a sync response.
type changeResponse struct {
	EntityID string  `json:"entity_id"`
	From     *string `json:"from"`
	To       string  `json:"to"`
}

// syncResponse is the outcome of an on-demand pass.
type syncResponse struct {
	roomsync.ResultPayload
	Changes []changeResponse `json:"changes"`
}

func (s *Server) bridgeView(cfg bridgeconfig.BridgeConfig, loaded bool) bridgeResponse {
	view := bridgeResponse{
		Bridge:      cfg.Name,
		Title:       cfg.Title,
		DefaultRoom: cfg.DefaultRoom,
		Loaded:      loaded,
	}
	if res, ok := s.sync.LastResult(cfg.Name); ok {
		payload := roomsync.NewResultPayload(res)
		view.LastResult = &payload
	}
	return view
}

// handleListBridges returns every configured bridge with its last result.
func (s *Server) handleListBridges(w http.ResponseWriter, r *http.Request) {
	configs, err := s.configs.List(r.Context())
	if err != nil {
		s.logger.Error("listing bridge configs", "error", err)
		writeInternalError(w, "failed to list bridges")
		return
	}

	loaded := make(map[string]bool)
	for _, name := range s.sync.Bridges() {
		loaded[name] = true
	}

	bridges := make([]bridgeResponse, 0, len(configs))
	for _, cfg := range configs {
		bridges = append(bridges, s.bridgeView(cfg, loaded[cfg.Name]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bridges": bridges,
		"count":   len(bridges),
	})
}

// handleGetBridge returns a single configured bridge.
func (s *Server) handleGetBridge(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bridge")
	cfg, err := s.configs.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, bridgeconfig.ErrNotFound) {
			writeNotFound(w, "bridge not configured")
			return
		}
		s.logger.Error("getting bridge config", "bridge", name, "error", err)
		writeInternalError(w, "failed to get bridge")
		return
	}

	loaded := false
	for _, b := range s.sync.Bridges() {
		if b == name {
			loaded = true
			break
		}
	}
	writeJSON(w, http.StatusOK, s.bridgeView(*cfg, loaded))
}

// handleGetResult returns the bridge's last sync result.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.sync.LastResult(chi.URLParam(r, "bridge"))
	if !ok {
		writeNotFound(w, "no sync result for bridge")
		return
	}
	writeJSON(w, http.StatusOK, roomsync.NewResultPayload(res))
}

// handleSync runs a pass for the bridge and returns its result. With
// ?async=true the pass is scheduled through the debouncer instead.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bridge")

	async := false
	if v := r.URL.Query().Get("async"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "async must be a boolean")
			return
		}
		async = parsed
	}

	if async {
		if err := s.sync.Trigger(name); err != nil {
			s.writeSyncError(w, name, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"bridge": name,
			"status": "scheduled",
		})
		return
	}

	res, err := s.sync.SyncNow(r.Context(), name)
	if err != nil {
		s.writeSyncError(w, name, err)
		return
	}
	if errors.Is(res.Err, roomsync.ErrSupervisorStopped) {
		s.writeSyncError(w, name, res.Err)
		return
	}

	resp := syncResponse{
		ResultPayload: roomsync.NewResultPayload(res),
		Changes:       make([]changeResponse, 0, len(res.Changes)),
	}
	for _, c := range res.Changes {
		resp.Changes = append(resp.Changes, changeResponse{EntityID: c.EntityID, From: c.From, To: c.To})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeSyncError(w http.ResponseWriter, bridge string, err error) {
	switch {
	case errors.Is(err, roomsync.ErrBridgeNotLoaded):
		writeNotFound(w, "bridge not loaded")
	case errors.Is(err, roomsync.ErrSupervisorStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "service is shutting down")
	default:
		s.logger.Error("running sync", "bridge", bridge, "error", err)
		writeInternalError(w, "sync failed")
	}
}
