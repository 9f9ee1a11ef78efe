// Package database provides SQLite connectivity for the room sync service.
//
// The database holds the platform registries (areas, devices, entities)
// consulted read-only by every sync pass, and the configured bridges.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded, versioned schema migrations
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
