package audit

import (
	"context"
	"time"

	"github.com/nerrad567/homekit-room-sync/internal/roomsync"
)

// recordTimeout bounds a single insert made on behalf of a sync pass.
const recordTimeout = 5 * time.Second

// SyncEntry converts a finished pass into an audit log entry.
func SyncEntry(res roomsync.Result) *AuditLog {
	changes := make([]map[string]any, 0, len(res.Changes))
	for _, c := range res.Changes {
		change := map[string]any{"entity_id": c.EntityID, "to": c.To}
		if c.From != nil {
			change["from"] = *c.From
		}
		changes = append(changes, change)
	}

	details := map[string]any{
		"state":       string(res.State),
		"changed":     len(res.Changes),
		"reloaded":    res.Reloaded,
		"duration_ms": res.Duration.Milliseconds(),
		"changes":     changes,
	}
	if res.Err != nil {
		details["error"] = res.Err.Error()
	}
	if res.BackupErr != nil {
		details["backup_error"] = res.BackupErr.Error()
	}
	if res.ReloadErr != nil {
		details["reload_error"] = res.ReloadErr.Error()
	}

	entry := &AuditLog{
		Action:     ActionSync,
		EntityType: EntityBridge,
		EntityID:   res.Bridge,
		Source:     SourceService,
		Details:    details,
	}
	if !res.StartedAt.IsZero() {
		entry.CreatedAt = res.StartedAt.UTC()
	}
	return entry
}

// Recorder writes sync passes to the audit log. Unchanged passes are skipped
// unless RecordUnchanged is set.
type Recorder struct {
	repo            Repository
	source          string
	logger          roomsync.Logger
	RecordUnchanged bool
}

// NewRecorder creates a Recorder writing to repo. Entries are attributed to
// source (SourceService or SourceCLI).
func NewRecorder(repo Repository, source string, logger roomsync.Logger) *Recorder {
	return &Recorder{repo: repo, source: source, logger: logger}
}

// RecordSync implements roomsync.Recorder. Write failures are logged only.
func (r *Recorder) RecordSync(res roomsync.Result) {
	if res.State == roomsync.StateUnchanged && !r.RecordUnchanged {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	entry := SyncEntry(res)
	entry.Source = r.source
	if err := r.repo.Create(ctx, entry); err != nil && r.logger != nil {
		r.logger.Warn("recording sync in audit log", "bridge", res.Bridge, "error", err)
	}
}
