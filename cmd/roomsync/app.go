package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	_ "github.com/nerrad567/homekit-room-sync/migrations"

	"github.com/nerrad567/homekit-room-sync/internal/audit"
	"github.com/nerrad567/homekit-room-sync/internal/bridgeconfig"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/config"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/database"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/logging"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/mqtt"
	"github.com/nerrad567/homekit-room-sync/internal/registry"
)

// app holds what every subcommand needs: configuration, logger and the
// migrated database with its repositories.
type app struct {
	cfg *config.Config
	log *logging.Logger
	db  *database.DB

	registries *registry.SQLiteRepository
	configs    *bridgeconfig.SQLiteRepository
	audit      *audit.SQLiteRepository
}

// openApp loads the configuration at path and opens the database. Logs go to
// logOut, or to logging.output when logOut is nil.
func openApp(ctx context.Context, path string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var log *logging.Logger
	if logOut != nil {
		log = logging.NewWithWriter(cfg.Logging, version, logOut)
	} else {
		log = logging.New(cfg.Logging, version)
	}
	log.Debug("configuration loaded", "path", path)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("database ready", "path", cfg.Database.Path)

	return &app{
		cfg:        cfg,
		log:        log,
		db:         db,
		registries: registry.NewSQLiteRepository(db.DB),
		configs:    bridgeconfig.NewSQLiteRepository(db.DB),
		audit:      audit.NewSQLiteRepository(db.DB),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Error("error closing database", "error", err)
	}
}

func (a *app) flow() *bridgeconfig.Flow {
	return bridgeconfig.NewFlow(a.cfg.Storage.Dir, a.configs, a.registries)
}

// record adds a CLI change to the audit log. Failures only warn; the change
// itself is already stored.
func (a *app) record(ctx context.Context, action, entityType, entityID string, details map[string]any) {
	err := a.audit.Create(ctx, &audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Source:     audit.SourceCLI,
		Details:    details,
	})
	if err != nil {
		a.log.Warn("recording change in audit log", "action", action, "error", err)
	}
}

// auditRecorder returns a sync recorder writing to the audit log.
func (a *app) auditRecorder(source string) *audit.Recorder {
	rec := audit.NewRecorder(a.audit, source, a.log)
	rec.RecordUnchanged = a.cfg.Audit.RecordUnchanged
	return rec
}

// connectMQTT connects with the service identity. It returns nil when MQTT is
// disabled.
func (a *app) connectMQTT() (*mqtt.Client, error) {
	if !a.cfg.MQTT.Enabled {
		return nil, nil
	}
	client, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	a.attachMQTT(client)
	return client, nil
}

// connectMQTTTransient connects under a unique client ID so a one-off command
// never displaces the running service's session.
func (a *app) connectMQTTTransient() (*mqtt.Client, error) {
	if !a.cfg.MQTT.Enabled {
		return nil, nil
	}
	cfg := a.cfg.MQTT
	cfg.Broker.ClientID = fmt.Sprintf("%s-cli-%s", cfg.Broker.ClientID, uuid.NewString()[:8])
	client, err := mqtt.ConnectTransient(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	a.attachMQTT(client)
	return client, nil
}

func (a *app) attachMQTT(client *mqtt.Client) {
	client.SetLogger(a.log)
	client.SetOnConnect(func() {
		a.log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		a.log.Warn("MQTT disconnected", "error", err)
	})
	a.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
		"client_id", a.cfg.MQTT.Broker.ClientID,
	)
}

// registryEvent is the payload of the roomsync/event/* notifications.
type registryEvent struct {
	Event     string `json:"event"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// notify tells a running service about a change made by this command. It is a
// no-op when MQTT is disabled; a broker that cannot be reached only warns,
// since the change itself is already stored.
func (a *app) notify(events ...string) {
	client, err := a.connectMQTTTransient()
	if err != nil {
		a.log.Warn("running service not notified", "error", err)
		return
	}
	if client == nil {
		return
	}
	defer client.Close()

	topics := mqtt.Topics{}
	for _, event := range events {
		payload, _ := json.Marshal(registryEvent{ //nolint:errcheck // Plain struct of strings
			Event:     event,
			Source:    "cli",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		if err := client.Publish(topics.RegistryEvent(event), payload, client.QoS(), false); err != nil {
			a.log.Warn("publishing change notification", "event", event, "error", err)
		}
	}
}
