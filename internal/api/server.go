// Package api provides the HTTP status API for the room sync service.
//
// It exposes the configured bridges, the outcome of each bridge's last sync
// pass, and an endpoint to request a pass on demand. The API is read-mostly
// and unauthenticated; bind it to localhost or put it behind a proxy.
//
// Routes (all under /api/v1):
//
//	GET  /health
//	GET  /history
//	GET  /bridges
//	GET  /bridges/{bridge}
//	GET  /bridges/{bridge}/result
//	GET  /bridges/{bridge}/history
//	POST /bridges/{bridge}/sync[?async=true]
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/homekit-room-sync/internal/audit"
	"github.com/nerrad567/homekit-room-sync/internal/bridgeconfig"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/config"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/logging"
	"github.com/nerrad567/homekit-room-sync/internal/roomsync"
)

// shutdownGrace bounds how long Close waits for in-flight requests.
const shutdownGrace = 10 * time.Second

// SyncService is the part of the supervisor the API drives.
type SyncService interface {
	Bridges() []string
	LastResult(bridge string) (roomsync.Result, bool)
	Trigger(bridge string) error
	SyncNow(ctx context.Context, bridge string) (roomsync.Result, error)
}

// ConfigSource lists the stored bridge configurations.
type ConfigSource interface {
	List(ctx context.Context) ([]bridgeconfig.BridgeConfig, error)
	Get(ctx context.Context, bridge string) (*bridgeconfig.BridgeConfig, error)
}

// HistorySource lists audit log entries.
type HistorySource interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Sync    SyncService
	Configs ConfigSource
	History HistorySource // optional: /history returns 404 without it
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	sync    SyncService
	configs ConfigSource
	history HistorySource
	version string
	server  *http.Server
}

// New validates deps and returns an unstarted server.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sync == nil {
		return nil, fmt.Errorf("sync service is required")
	}
	if deps.Configs == nil {
		return nil, fmt.Errorf("config source is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		sync:    deps.Sync,
		configs: deps.Configs,
		history: deps.History,
		version: deps.Version,
	}, nil
}

// Start serves HTTP in a background goroutine until Close. Listen errors
// are logged, not returned.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close stops accepting connections and drains in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports an error until Start has been called.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
