package roomsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homekit-room-sync/internal/homekit"
	"github.com/nerrad567/homekit-room-sync/internal/registry"
)

// Logger is the logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RegistrySource provides a fresh registry snapshot for each pass.
type RegistrySource interface {
	Snapshot(ctx context.Context) (*registry.Snapshot, error)
}

// State is the terminal state of a sync pass.
type State string

// Pass outcomes.
const (
	StateUnchanged State = "unchanged"
	StateWritten   State = "written"
	StateFailed    State = "failed"
)

// Change records one accessory whose room was rewritten.
type Change struct {
	EntityID string
	From     *string
	To       string
}

// Result describes a finished sync pass.
type Result struct {
	Bridge    string
	State     State
	Changes   []Change
	StartedAt time.Time
	Duration  time.Duration

	// Err is set when State is StateFailed.
	Err error

	// BackupErr is set when the pre-write backup failed. The write still went ahead.
	BackupErr error

	// Reloaded reports a successful reload request after a write.
	Reloaded bool

	// ReloadErr is set when the reload request after a write failed.
	ReloadErr error
}

// OK reports whether the pass counts as successful. Unchanged documents and
// writes whose reload failed are both successful.
func (r Result) OK() bool {
	return r.State != StateFailed
}

// CoordinatorConfig identifies the bridge a coordinator syncs.
type CoordinatorConfig struct {
	// StorageDir holds the bridge's state file.
	StorageDir string

	// Bridge is the bridge name, as in homekit.<Bridge>.state.
	Bridge string

	// DefaultRoom is used for entities without a resolvable area. Nil or
	// empty disables the fallback.
	DefaultRoom *string

	// Lock serialises passes on the state file. Coordinators that replace one
	// another for the same bridge must share it. Nil allocates a private lock.
	Lock *sync.Mutex
}

// Coordinator runs sync passes for one bridge.
//
// Thread Safety: Sync and SyncWithResult are safe for concurrent use. Passes
// are serialised on CoordinatorConfig.Lock.
type Coordinator struct {
	mu *sync.Mutex

	bridge      string
	path        string
	defaultRoom *string

	registries RegistrySource
	reloader   homekit.Reloader
	logger     Logger
}

// NewCoordinator creates a coordinator.
//
// Parameters:
//   - cfg: the bridge, its storage directory, default room and pass lock
//   - registries: read once per pass
//   - reloader: called after each write; nil means homekit.NopReloader
//   - logger: nil discards logs
func NewCoordinator(cfg CoordinatorConfig, registries RegistrySource, reloader homekit.Reloader, logger Logger) *Coordinator {
	if reloader == nil {
		reloader = homekit.NopReloader{}
	}
	if logger == nil {
		logger = noopLogger{}
	}

	var defaultRoom *string
	if cfg.DefaultRoom != nil && *cfg.DefaultRoom != "" {
		room := *cfg.DefaultRoom
		defaultRoom = &room
	}

	mu := cfg.Lock
	if mu == nil {
		mu = new(sync.Mutex)
	}

	return &Coordinator{
		mu:          mu,
		bridge:      cfg.Bridge,
		path:        homekit.StatePath(cfg.StorageDir, cfg.Bridge),
		defaultRoom: defaultRoom,
		registries:  registries,
		reloader:    reloader,
		logger:      logger,
	}
}

// Bridge returns the bridge name.
func (c *Coordinator) Bridge() string {
	return c.bridge
}

// StatePath returns the state file this coordinator edits.
func (c *Coordinator) StatePath() string {
	return c.path
}

// Sync runs one pass and reports whether it succeeded.
func (c *Coordinator) Sync(ctx context.Context) bool {
	return c.SyncWithResult(ctx).OK()
}

// SyncWithResult runs one pass and returns its full outcome.
//
// Parameters:
//   - ctx: carries values to the registry read and the reload; once the pass
//     holds the lock, cancelling ctx no longer stops it
//
// Returns:
//   - Result: the outcome; failures are reported in Result.Err, never panics
func (c *Coordinator) SyncWithResult(ctx context.Context) (res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A pass that has started always finishes. The reloader's own timeout
	// bounds the only call that can wait on another process.
	ctx = context.WithoutCancel(ctx)

	res = Result{Bridge: c.bridge, StartedAt: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("sync pass panicked",
				"bridge", c.bridge,
				"path", c.path,
				"panic", r,
			)
			res.State = StateFailed
			res.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		res.Duration = time.Since(res.StartedAt)
	}()

	c.run(ctx, &res)
	return res
}

func (c *Coordinator) fail(res *Result, err error) {
	res.State = StateFailed
	res.Err = err
}

func (c *Coordinator) run(ctx context.Context, res *Result) {
	doc, err := homekit.Load(c.path)
	if err != nil {
		if errors.Is(err, homekit.ErrNotFound) {
			c.logger.Warn("bridge state file not found", "bridge", c.bridge, "path", c.path)
		} else {
			c.logger.Error("reading bridge state file", "bridge", c.bridge, "path", c.path, "error", err)
		}
		c.fail(res, err)
		return
	}

	snap, err := c.registries.Snapshot(ctx)
	if err != nil {
		c.logger.Error("reading registries", "bridge", c.bridge, "error", err)
		c.fail(res, fmt.Errorf("reading registries: %w", err))
		return
	}

	for _, acc := range doc.Accessories() {
		if acc.EntityID == "" {
			continue
		}
		room := ResolveRoom(acc.EntityID, snap, snap, snap, c.defaultRoom)
		if room == nil || *room == "" {
			continue
		}
		if acc.RoomName != nil && *acc.RoomName == *room {
			continue
		}
		if err := doc.SetRoom(acc.Index, *room); err != nil {
			c.logger.Error("updating accessory room", "bridge", c.bridge, "entity_id", acc.EntityID, "error", err)
			c.fail(res, err)
			return
		}
		res.Changes = append(res.Changes, Change{EntityID: acc.EntityID, From: acc.RoomName, To: *room})
		c.logger.Debug("room changed",
			"bridge", c.bridge,
			"entity_id", acc.EntityID,
			"from", derefOr(acc.RoomName, ""),
			"to", *room,
		)
	}

	if len(res.Changes) == 0 {
		res.State = StateUnchanged
		c.logger.Debug("no room changes needed", "bridge", c.bridge)
		return
	}

	if backup, err := homekit.Backup(c.path); err != nil {
		res.BackupErr = err
		c.logger.Warn("backing up bridge state file", "bridge", c.bridge, "backup", backup, "error", err)
	}

	if err := homekit.Save(c.path, doc); err != nil {
		c.logger.Error("writing bridge state file", "bridge", c.bridge, "path", c.path, "error", err)
		c.fail(res, err)
		return
	}
	res.State = StateWritten
	c.logger.Info("rooms synced", "bridge", c.bridge, "changed", len(res.Changes))

	if err := c.reloader.Reload(ctx); err != nil {
		res.ReloadErr = err
		c.logger.Warn("reloading homekit bridge", "bridge", c.bridge, "error", err)
		return
	}
	res.Reloaded = true
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
