package bridgeconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines bridge configuration persistence.
type Repository interface {
	List(ctx context.Context) ([]BridgeConfig, error)
	Get(ctx context.Context, bridge string) (*BridgeConfig, error)
	Create(ctx context.Context, cfg *BridgeConfig) error
	UpdateDefaultRoom(ctx context.Context, bridge string, room *string) error
	Delete(ctx context.Context, bridge string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed bridge configuration repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `SELECT bridge_name, title, default_room, version, created_at, updated_at FROM bridge_configs`

// List returns every configured bridge ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]BridgeConfig, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" ORDER BY bridge_name")
	if err != nil {
		return nil, fmt.Errorf("querying bridge configs: %w", err)
	}
	defer rows.Close()

	var configs []BridgeConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bridge config row: %w", err)
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bridge config rows: %w", err)
	}
	return configs, nil
}

// Get returns the configuration of one bridge.
func (r *SQLiteRepository) Get(ctx context.Context, bridge string) (*BridgeConfig, error) {
	cfg, err := scanConfig(r.db.QueryRowContext(ctx, selectColumns+" WHERE bridge_name = ?", bridge))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning bridge config: %w", err)
	}
	return cfg, nil
}

// Create inserts a new configuration. Title and Version are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, cfg *BridgeConfig) error {
	if cfg.Title == "" {
		cfg.Title = Title(cfg.Name)
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	now := time.Now().UTC().Truncate(time.Second)
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	const query = `INSERT INTO bridge_configs (bridge_name, title, default_room, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		cfg.Name, cfg.Title, nullStr(cfg.DefaultRoom), cfg.Version,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrExists, cfg.Name)
		}
		return fmt.Errorf("inserting bridge config %s: %w", cfg.Name, err)
	}
	return nil
}

// UpdateDefaultRoom replaces a bridge's default room. Nil clears it.
func (r *SQLiteRepository) UpdateDefaultRoom(ctx context.Context, bridge string, room *string) error {
	const query = `UPDATE bridge_configs SET default_room = ?, updated_at = ? WHERE bridge_name = ?`
	result, err := r.db.ExecContext(ctx, query,
		nullStr(room), time.Now().UTC().Format(time.RFC3339), bridge)
	if err != nil {
		return fmt.Errorf("updating bridge config %s: %w", bridge, err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // SQLite always supports RowsAffected
		return ErrNotFound
	}
	return nil
}

// Delete removes a bridge's configuration.
func (r *SQLiteRepository) Delete(ctx context.Context, bridge string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM bridge_configs WHERE bridge_name = ?", bridge)
	if err != nil {
		return fmt.Errorf("deleting bridge config %s: %w", bridge, err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // SQLite always supports RowsAffected
		return ErrNotFound
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (*BridgeConfig, error) {
	var cfg BridgeConfig
	var room sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&cfg.Name, &cfg.Title, &room, &cfg.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if room.Valid {
		cfg.DefaultRoom = &room.String
	}
	cfg.CreatedAt = parseTime(createdAt)
	cfg.UpdatedAt = parseTime(updatedAt)
	return &cfg, nil
}

// nullStr converts a *string to a sql.NullString. Empty strings are NULL.
func nullStr(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// parseTime parses the RFC 3339 timestamps the schema stores. Unparseable
// values yield the zero time.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
