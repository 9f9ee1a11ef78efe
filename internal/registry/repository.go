package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository defines the registry persistence operations.
type Repository interface {
	Snapshot(ctx context.Context) (*Snapshot, error)

	ListAreas(ctx context.Context) ([]Area, error)
	GetArea(ctx context.Context, id string) (*Area, error)
	UpsertArea(ctx context.Context, area *Area) error
	DeleteArea(ctx context.Context, id string) error

	ListDevices(ctx context.Context) ([]Device, error)
	UpsertDevice(ctx context.Context, device *Device) error
	DeleteDevice(ctx context.Context, id string) error

	ListEntities(ctx context.Context) ([]Entity, error)
	GetEntity(ctx context.Context, entityID string) (*Entity, error)
	UpsertEntity(ctx context.Context, entity *Entity) error
	DeleteEntity(ctx context.Context, entityID string) error

	Import(ctx context.Context, data ImportData) error
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed registry repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Snapshot reads all three registries inside one read transaction so the
// returned view is consistent even if the platform writes concurrently.
//
// Returns:
//   - *Snapshot: an immutable copy, safe to share between goroutines
//   - error: if ctx is done or a query fails
func (r *SQLiteRepository) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("starting snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Read-only transaction

	areas, err := queryAreas(ctx, tx)
	if err != nil {
		return nil, err
	}
	devices, err := queryDevices(ctx, tx)
	if err != nil {
		return nil, err
	}
	entities, err := queryEntities(ctx, tx)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(areas, devices, entities), nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ListAreas returns all areas ordered by name.
func (r *SQLiteRepository) ListAreas(ctx context.Context) ([]Area, error) {
	return queryAreas(ctx, r.db)
}

// GetArea returns a single area by ID.
func (r *SQLiteRepository) GetArea(ctx context.Context, id string) (*Area, error) {
	var a Area
	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM areas WHERE id = ?", id).Scan(&a.ID, &a.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAreaNotFound
		}
		return nil, fmt.Errorf("scanning area: %w", err)
	}
	return &a, nil
}

// UpsertArea inserts an area or renames an existing one.
func (r *SQLiteRepository) UpsertArea(ctx context.Context, area *Area) error {
	return upsertArea(ctx, r.db, area)
}

// DeleteArea removes an area. Devices and entities referencing it keep the
// dangling ID, which sync passes treat as "no area".
func (r *SQLiteRepository) DeleteArea(ctx context.Context, id string) error {
	return deleteRow(ctx, r.db, "DELETE FROM areas WHERE id = ?", id, ErrAreaNotFound)
}

// ListDevices returns all devices ordered by ID.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]Device, error) {
	return queryDevices(ctx, r.db)
}

// UpsertDevice inserts a device or updates its name and area.
func (r *SQLiteRepository) UpsertDevice(ctx context.Context, device *Device) error {
	return upsertDevice(ctx, r.db, device)
}

// DeleteDevice removes a device.
func (r *SQLiteRepository) DeleteDevice(ctx context.Context, id string) error {
	return deleteRow(ctx, r.db, "DELETE FROM devices WHERE id = ?", id, ErrDeviceNotFound)
}

// ListEntities returns all entities ordered by entity ID.
func (r *SQLiteRepository) ListEntities(ctx context.Context) ([]Entity, error) {
	return queryEntities(ctx, r.db)
}

// GetEntity returns a single entity by entity ID.
func (r *SQLiteRepository) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	var e Entity
	var areaID, deviceID sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT entity_id, area_id, device_id FROM entities WHERE entity_id = ?", entityID,
	).Scan(&e.EntityID, &areaID, &deviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	e.AreaID = fromNull(areaID)
	e.DeviceID = fromNull(deviceID)
	return &e, nil
}

// UpsertEntity inserts an entity or updates its area and device.
func (r *SQLiteRepository) UpsertEntity(ctx context.Context, entity *Entity) error {
	return upsertEntity(ctx, r.db, entity)
}

// DeleteEntity removes an entity.
func (r *SQLiteRepository) DeleteEntity(ctx context.Context, entityID string) error {
	return deleteRow(ctx, r.db, "DELETE FROM entities WHERE entity_id = ?", entityID, ErrEntityNotFound)
}

func upsertArea(ctx context.Context, db execer, area *Area) error {
	if area.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidArea)
	}
	if area.ID == "" {
		area.ID = GenerateID()
	}
	const query = `INSERT INTO areas (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`
	if _, err := db.ExecContext(ctx, query, area.ID, area.Name); err != nil {
		return fmt.Errorf("upserting area %s: %w", area.ID, err)
	}
	return nil
}

func upsertDevice(ctx context.Context, db execer, device *Device) error {
	if device.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	const query = `INSERT INTO devices (id, name, area_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, area_id = excluded.area_id,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`
	if _, err := db.ExecContext(ctx, query, device.ID, device.Name, nullStr(device.AreaID)); err != nil {
		return fmt.Errorf("upserting device %s: %w", device.ID, err)
	}
	return nil
}

func upsertEntity(ctx context.Context, db execer, entity *Entity) error {
	if entity.EntityID == "" {
		return fmt.Errorf("%w: entity_id is required", ErrInvalidEntity)
	}
	const query = `INSERT INTO entities (entity_id, area_id, device_id) VALUES (?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET area_id = excluded.area_id, device_id = excluded.device_id,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`
	_, err := db.ExecContext(ctx, query, entity.EntityID, nullStr(entity.AreaID), nullStr(entity.DeviceID))
	if err != nil {
		return fmt.Errorf("upserting entity %s: %w", entity.EntityID, err)
	}
	return nil
}

func deleteRow(ctx context.Context, db execer, query, id string, notFound error) error {
	result, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return notFound
	}
	return nil
}

func queryAreas(ctx context.Context, q querier) ([]Area, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name FROM areas ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying areas: %w", err)
	}
	defer rows.Close()

	var areas []Area
	for rows.Next() {
		var a Area
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scanning area row: %w", err)
		}
		areas = append(areas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating area rows: %w", err)
	}
	return areas, nil
}

func queryDevices(ctx context.Context, q querier) ([]Device, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name, area_id FROM devices ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		var areaID sql.NullString
		if err := rows.Scan(&d.ID, &d.Name, &areaID); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		d.AreaID = fromNull(areaID)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

func queryEntities(ctx context.Context, q querier) ([]Entity, error) {
	rows, err := q.QueryContext(ctx, "SELECT entity_id, area_id, device_id FROM entities ORDER BY entity_id")
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		var areaID, deviceID sql.NullString
		if err := rows.Scan(&e.EntityID, &areaID, &deviceID); err != nil {
			return nil, fmt.Errorf("scanning entity row: %w", err)
		}
		e.AreaID = fromNull(areaID)
		e.DeviceID = fromNull(deviceID)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity rows: %w", err)
	}
	return entities, nil
}

// nullStr converts a *string to a sql.NullString for nullable columns.
// Empty strings are stored as NULL.
func nullStr(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNull converts a nullable column back into an optional string.
func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return stringPtr(ns.String)
}
