package roomsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/homekit-room-sync/internal/bridgeconfig"
	"github.com/nerrad567/homekit-room-sync/internal/homekit"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/mqtt"
)

// ConfigSource provides the configured bridges.
type ConfigSource interface {
	List(ctx context.Context) ([]bridgeconfig.BridgeConfig, error)
	Get(ctx context.Context, bridge string) (*bridgeconfig.BridgeConfig, error)
}

// ReloaderFactory builds the reloader for one bridge.
type ReloaderFactory func(bridge string) homekit.Reloader

// Recorder receives every pass result, e.g. to write metrics.
type Recorder interface {
	RecordSync(res Result)
}

// SupervisorOptions configures a Supervisor. Bus and Recorder are optional.
type SupervisorOptions struct {
	StorageDir  string
	Debounce    time.Duration
	InitialSync bool

	Registries  RegistrySource
	Configs     ConfigSource
	NewReloader ReloaderFactory

	// Bus delivers registry notifications and carries sync results.
	Bus homekit.MessageBus
	QoS byte

	Recorder Recorder
	Logger   Logger
}

// ResultPayload is the retained MQTT message describing a bridge's last pass.
type ResultPayload struct {
	Bridge      string `json:"bridge"`
	State       State  `json:"state"`
	Changed     int    `json:"changed"`
	Reloaded    bool   `json:"reloaded"`
	Error       string `json:"error,omitempty"`
	ReloadError string `json:"reload_error,omitempty"`
	Timestamp   string `json:"timestamp"`
	DurationMS  int64  `json:"duration_ms"`
}

// NewResultPayload converts a Result for publishing.
func NewResultPayload(res Result) ResultPayload {
	p := ResultPayload{
		Bridge:     res.Bridge,
		State:      res.State,
		Changed:    len(res.Changes),
		Reloaded:   res.Reloaded,
		Timestamp:  res.StartedAt.UTC().Format(time.RFC3339),
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		p.Error = res.Err.Error()
	}
	if res.ReloadErr != nil {
		p.ReloadError = res.ReloadErr.Error()
	}
	return p
}

type bridgeRuntime struct {
	config      bridgeconfig.BridgeConfig
	coordinator *Coordinator
	debouncer   *Debouncer
}

// Supervisor runs one coordinator and debouncer per configured bridge and
// routes registry notifications to them.
//
// Thread Safety: all methods are safe for concurrent use.
type Supervisor struct {
	opts   SupervisorOptions
	logger Logger

	ctx    context.Context
	cancel context.CancelFunc
	passes sync.WaitGroup

	mu         sync.Mutex
	bridges    map[string]*bridgeRuntime
	last       map[string]Result
	locks      map[string]*sync.Mutex
	subscribed []string
	stopped    bool
}

// NewSupervisor creates a Supervisor. Nothing runs until Start or Setup.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.NewReloader == nil {
		opts.NewReloader = func(string) homekit.Reloader { return homekit.NopReloader{} }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		bridges: make(map[string]*bridgeRuntime),
		last:    make(map[string]Result),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Start sets up every configured bridge and subscribes to registry
// notifications. A bridge that fails to set up is logged and skipped.
func (s *Supervisor) Start(ctx context.Context) error {
	configs, err := s.opts.Configs.List(ctx)
	if err != nil {
		return fmt.Errorf("listing bridge configs: %w", err)
	}
	for _, cfg := range configs {
		if err := s.Setup(ctx, cfg); err != nil {
			s.logger.Error("setting up bridge", "bridge", cfg.Name, "error", err)
		}
	}

	if s.opts.Bus == nil {
		s.logger.Info("no message bus, registry notifications disabled")
		return nil
	}
	return s.subscribe()
}

func (s *Supervisor) subscribe() error {
	topics := mqtt.Topics{}
	handlers := []struct {
		topic   string
		handler func(topic string, payload []byte) error
	}{
		{topics.EntityRegistryUpdated(), s.handleRegistryEvent},
		{topics.AreaRegistryUpdated(), s.handleRegistryEvent},
		{topics.BridgeConfigUpdated(), s.handleConfigEvent},
		{topics.AllSyncRequests(), s.handleSyncRequest},
	}

	for _, h := range handlers {
		if err := s.opts.Bus.Subscribe(h.topic, s.opts.QoS, h.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", h.topic, err)
		}
		s.mu.Lock()
		s.subscribed = append(s.subscribed, h.topic)
		s.mu.Unlock()
		s.logger.Debug("subscribed", "topic", h.topic)
	}
	return nil
}

func (s *Supervisor) handleRegistryEvent(topic string, _ []byte) error {
	s.logger.Debug("registry changed", "topic", topic)
	s.TriggerAll()
	return nil
}

func (s *Supervisor) handleConfigEvent(string, []byte) error {
	// Setup may wait on MQTT reload responses, which cannot be delivered
	// while this handler holds the client's delivery goroutine.
	go func() {
		if err := s.ReloadAll(s.ctx); err != nil {
			s.logger.Error("reloading bridge configs", "error", err)
		}
	}()
	return nil
}

func (s *Supervisor) handleSyncRequest(topic string, _ []byte) error {
	bridge, kind, ok := mqtt.ParseSyncTopic(topic)
	if !ok || kind != "request" {
		return fmt.Errorf("unexpected sync topic %q", topic)
	}
	return s.Trigger(bridge)
}

// Setup starts syncing the bridge described by cfg, replacing any running
// instance, and runs the initial pass when enabled. A replaced instance's
// pending pass is cancelled; a pass it is running finishes before any pass of
// the new instance starts.
//
// Parameters:
//   - ctx: used for the initial pass
//   - cfg: the bridge configuration
//
// Returns:
//   - error: bridgeconfig.ErrUnsupportedVersion for a newer config entry,
//     ErrSupervisorStopped after Stop
func (s *Supervisor) Setup(ctx context.Context, cfg bridgeconfig.BridgeConfig) error {
	if err := cfg.CheckVersion(); err != nil {
		return err
	}

	rt := &bridgeRuntime{config: cfg}
	rt.coordinator = NewCoordinator(CoordinatorConfig{
		StorageDir:  s.opts.StorageDir,
		Bridge:      cfg.Name,
		DefaultRoom: cfg.DefaultRoom,
		Lock:        s.bridgeLock(cfg.Name),
	}, s.opts.Registries, s.opts.NewReloader(cfg.Name), s.logger)
	rt.debouncer = NewDebouncer(s.opts.Debounce, func() {
		s.runPass(s.ctx, rt)
	})

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSupervisorStopped
	}
	if old, ok := s.bridges[cfg.Name]; ok {
		old.debouncer.Stop()
	}
	s.bridges[cfg.Name] = rt
	s.mu.Unlock()

	s.logger.Info("bridge loaded", "bridge", cfg.Name, "default_room", cfg.DefaultRoomOrEmpty())

	if s.opts.InitialSync {
		s.runPass(ctx, rt)
	}
	return nil
}

// bridgeLock returns the pass lock for bridge. It outlives reloads so a pass
// on a replaced coordinator never overlaps one on its successor.
func (s *Supervisor) bridgeLock(bridge string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.locks[bridge]
	if !ok {
		mu = new(sync.Mutex)
		s.locks[bridge] = mu
	}
	return mu
}

// Unload stops syncing bridge. A pending debounced pass is cancelled; a pass
// already running completes.
func (s *Supervisor) Unload(bridge string) error {
	s.mu.Lock()
	rt, ok := s.bridges[bridge]
	if ok {
		delete(s.bridges, bridge)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrBridgeNotLoaded, bridge)
	}
	rt.debouncer.Stop()
	s.logger.Info("bridge unloaded", "bridge", bridge)
	return nil
}

// Reload re-reads one bridge's configuration and sets it up again. A bridge
// whose configuration was removed is unloaded.
func (s *Supervisor) Reload(ctx context.Context, bridge string) error {
	cfg, err := s.opts.Configs.Get(ctx, bridge)
	if errors.Is(err, bridgeconfig.ErrNotFound) {
		if err := s.Unload(bridge); err != nil && !errors.Is(err, ErrBridgeNotLoaded) {
			return err
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading bridge config %s: %w", bridge, err)
	}
	if err := s.Unload(bridge); err != nil && !errors.Is(err, ErrBridgeNotLoaded) {
		return err
	}
	return s.Setup(ctx, *cfg)
}

// ReloadAll reconciles running bridges with the stored configuration:
// removed bridges are unloaded, new ones set up, and bridges whose default
// room changed are set up again.
//
// Returns:
//   - error: listing failures abort; per-bridge Setup errors are joined
func (s *Supervisor) ReloadAll(ctx context.Context) error {
	configs, err := s.opts.Configs.List(ctx)
	if err != nil {
		return fmt.Errorf("listing bridge configs: %w", err)
	}

	wanted := make(map[string]bridgeconfig.BridgeConfig, len(configs))
	for _, cfg := range configs {
		wanted[cfg.Name] = cfg
	}

	s.mu.Lock()
	var stale []string
	var changed []bridgeconfig.BridgeConfig
	for name, rt := range s.bridges {
		cfg, ok := wanted[name]
		switch {
		case !ok:
			stale = append(stale, name)
		case cfg.DefaultRoomOrEmpty() != rt.config.DefaultRoomOrEmpty():
			changed = append(changed, cfg)
		}
		delete(wanted, name)
	}
	s.mu.Unlock()

	for _, name := range stale {
		if err := s.Unload(name); err != nil && !errors.Is(err, ErrBridgeNotLoaded) {
			return err
		}
	}
	for _, cfg := range wanted {
		changed = append(changed, cfg)
	}

	var errs []error
	for _, cfg := range changed {
		if err := s.Setup(ctx, cfg); err != nil {
			errs = append(errs, fmt.Errorf("bridge %s: %w", cfg.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Trigger schedules a debounced pass for bridge.
func (s *Supervisor) Trigger(bridge string) error {
	s.mu.Lock()
	rt, ok := s.bridges[bridge]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrBridgeNotLoaded, bridge)
	}
	rt.debouncer.Trigger()
	return nil
}

// TriggerAll schedules a debounced pass for every loaded bridge.
func (s *Supervisor) TriggerAll() {
	s.mu.Lock()
	runtimes := make([]*bridgeRuntime, 0, len(s.bridges))
	for _, rt := range s.bridges {
		runtimes = append(runtimes, rt)
	}
	s.mu.Unlock()

	for _, rt := range runtimes {
		rt.debouncer.Trigger()
	}
}

// SyncNow runs a pass for bridge immediately, bypassing the debouncer. It
// waits for a pass already running on the same bridge.
//
// Returns:
//   - Result: the pass outcome, also published and recorded
//   - error: ErrBridgeNotLoaded if bridge is not set up
func (s *Supervisor) SyncNow(ctx context.Context, bridge string) (Result, error) {
	s.mu.Lock()
	rt, ok := s.bridges[bridge]
	s.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrBridgeNotLoaded, bridge)
	}
	return s.runPass(ctx, rt), nil
}

// Bridges returns the names of loaded bridges, sorted.
func (s *Supervisor) Bridges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.bridges))
	for name := range s.bridges {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LastResult returns the most recent pass result for bridge. Results survive
// a reload of the bridge.
func (s *Supervisor) LastResult(bridge string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.last[bridge]
	return res, ok
}

// Stop unsubscribes from notifications, unloads every bridge and waits for
// passes in progress to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	subscribed := s.subscribed
	s.subscribed = nil
	runtimes := s.bridges
	s.bridges = make(map[string]*bridgeRuntime)
	s.mu.Unlock()

	if s.opts.Bus != nil {
		for _, topic := range subscribed {
			if err := s.opts.Bus.Unsubscribe(topic); err != nil {
				s.logger.Warn("unsubscribing", "topic", topic, "error", err)
			}
		}
	}
	for _, rt := range runtimes {
		rt.debouncer.Stop()
	}

	s.cancel()
	s.passes.Wait()
}

func (s *Supervisor) runPass(ctx context.Context, rt *bridgeRuntime) Result {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Result{Bridge: rt.config.Name, State: StateFailed, Err: ErrSupervisorStopped}
	}
	s.passes.Add(1)
	s.mu.Unlock()
	defer s.passes.Done()

	res := rt.coordinator.SyncWithResult(ctx)
	s.report(res)
	return res
}

func (s *Supervisor) report(res Result) {
	s.mu.Lock()
	s.last[res.Bridge] = res
	s.mu.Unlock()

	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordSync(res)
	}
	if s.opts.Bus == nil {
		return
	}

	payload, err := json.Marshal(NewResultPayload(res))
	if err != nil {
		s.logger.Warn("encoding sync result", "bridge", res.Bridge, "error", err)
		return
	}
	if err := s.opts.Bus.Publish(mqtt.Topics{}.SyncResult(res.Bridge), payload, s.opts.QoS, true); err != nil {
		s.logger.Warn("publishing sync result", "bridge", res.Bridge, "error", err)
	}
}
