package registry

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ImportData is a full registry export, as written by the platform or by hand.
//
//	areas:
//	  - id: kitchen
//	    name: Kitchen
//	devices:
//	  - id: hub1
//	    area_id: kitchen
//	entities:
//	  - entity_id: light.kitchen
//	    device_id: hub1
type ImportData struct {
	Areas    []Area   `yaml:"areas"`
	Devices  []Device `yaml:"devices"`
	Entities []Entity `yaml:"entities"`
}

// ParseImportFile reads an ImportData document from a YAML file.
//
// Parameters:
//   - path: YAML file in the ImportData layout
//
// Returns:
//   - *ImportData: parsed rows, not yet validated
//   - error: if the file cannot be read or is not valid YAML
func ParseImportFile(path string) (*ImportData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading import file: %w", err)
	}
	var data ImportData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing import file: %w", err)
	}
	return &data, nil
}

// Import replaces the registry contents with data in a single transaction.
// Areas without an ID are given a generated one. On any error the previous
// contents are left untouched.
//
// Parameters:
//   - ctx: bounds the transaction
//   - data: the complete new registry
//
// Returns:
//   - error: ErrInvalidArea, ErrInvalidDevice or ErrInvalidEntity for a row
//     missing its key, or the database error
func (r *SQLiteRepository) Import(ctx context.Context, data ImportData) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting import transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	for _, table := range []string{"entities", "devices", "areas"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for i := range data.Areas {
		if err := upsertArea(ctx, tx, &data.Areas[i]); err != nil {
			return err
		}
	}
	for i := range data.Devices {
		if err := upsertDevice(ctx, tx, &data.Devices[i]); err != nil {
			return err
		}
	}
	for i := range data.Entities {
		if err := upsertEntity(ctx, tx, &data.Entities[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	return nil
}
