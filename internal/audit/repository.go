// Package audit keeps the activity history in the audit_logs table: sync
// passes that wrote a state file (or failed), and bridge or registry changes
// made from the command line.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions.
const (
	ActionSync           = "sync"
	ActionBridgeAdd      = "bridge_add"
	ActionBridgeRemove   = "bridge_remove"
	ActionDefaultRoom    = "default_room"
	ActionRegistryImport = "registry_import"
)

// Entity types.
const (
	EntityBridge   = "bridge"
	EntityRegistry = "registry"
)

// Sources.
const (
	SourceService = "service"
	SourceCLI     = "cli"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// AuditLog is one recorded action.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects audit logs. Empty fields match everything.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string // bridge name for EntityBridge
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult is one page of audit logs.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository stores and lists audit logs.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create stores entry, filling in ID and CreatedAt when unset.
func (r *SQLiteRepository) Create(ctx context.Context, entry *AuditLog) error {
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details any
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(b)
	}

	const query = `INSERT INTO audit_logs (id, action, entity_type, entity_id, source, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Action, entry.EntityType, nullableString(entry.EntityID),
		entry.Source, details, entry.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting audit log %s: %w", entry.ID, err)
	}
	return nil
}

// Prune deletes entries created before the given time and returns how many
// were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM audit_logs WHERE created_at < ?", before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning audit logs: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	return n, nil
}

// List returns audit logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = filter.normalised()
	where, args := filter.where()

	var total int
	//nolint:gosec // where holds only placeholders
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	// rowid orders entries written within the same second.
	//nolint:gosec // where holds only placeholders
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, action, entity_type, entity_id, source, details, created_at FROM audit_logs"+
			where+" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (f Filter) normalised() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultLimit
	case f.Limit > maxLimit:
		f.Limit = maxLimit
	}
	f.Offset = max(f.Offset, 0)
	return f
}

// where builds the WHERE clause for the set filter fields.
func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"action", f.Action},
		{"entity_type", f.EntityType},
		{"entity_id", f.EntityID},
	} {
		if c.value != "" {
			conds = append(conds, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanLog(rows *sql.Rows) (AuditLog, error) {
	var (
		entry     AuditLog
		entityID  sql.NullString
		details   sql.NullString
		createdAt string
	)
	if err := rows.Scan(&entry.ID, &entry.Action, &entry.EntityType, &entityID,
		&entry.Source, &details, &createdAt); err != nil {
		return entry, fmt.Errorf("scanning audit log: %w", err)
	}

	entry.EntityID = entityID.String
	if details.String != "" {
		// Unreadable details are dropped rather than failing the listing.
		_ = json.Unmarshal([]byte(details.String), &entry.Details)
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return entry, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	entry.CreatedAt = t
	return entry, nil
}

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
