package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homekit-room-sync/internal/api"
	"github.com/nerrad567/homekit-room-sync/internal/audit"
	"github.com/nerrad567/homekit-room-sync/internal/homekit"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/database"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/influxdb"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/mqtt"
	"github.com/nerrad567/homekit-room-sync/internal/roomsync"
)

func newServeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync service until interrupted",
		Long: `serve loads every configured bridge, runs an initial pass for each and
then re-syncs whenever the entity or area registry changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(cmd.Context())
		},
	}
}

// serve is the service body, separated from the command for testability.
// It returns nil on a clean shutdown.
func (a *app) serve(ctx context.Context) error {
	log := a.log
	log.Info("starting roomsync",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	var bus homekit.MessageBus
	mqttClient, err := a.connectMQTT()
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		bus = &mqttBus{client: mqttClient}
	} else {
		log.Info("MQTT disabled")
	}

	if days := a.cfg.Audit.RetentionDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		pruned, pruneErr := a.audit.Prune(ctx, cutoff)
		if pruneErr != nil {
			log.Warn("pruning audit log", "error", pruneErr)
		} else if pruned > 0 {
			log.Info("audit log pruned", "entries", pruned, "retention_days", days)
		}
	}
	recorders := multiRecorder{a.auditRecorder(audit.SourceService)}

	var influxClient *influxdb.Client
	if a.cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(a.cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", a.cfg.InfluxDB.URL,
			"org", a.cfg.InfluxDB.Org,
			"bucket", a.cfg.InfluxDB.Bucket,
		)
		recorders = append(recorders, &metricsRecorder{client: influxClient})
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, a.db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	supervisor := roomsync.NewSupervisor(roomsync.SupervisorOptions{
		StorageDir:  a.cfg.Storage.Dir,
		Debounce:    a.cfg.DebounceDelay(),
		InitialSync: a.cfg.Sync.InitialSync,
		Registries:  a.registries,
		Configs:     a.configs,
		NewReloader: newReloaderFactory(a.cfg, bus),
		Bus:         bus,
		QoS:         byte(a.cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
		Recorder:    recorders,
		Logger:      log,
	})
	if err := supervisor.Start(ctx); err != nil {
		supervisor.Stop()
		return fmt.Errorf("starting supervisor: %w", err)
	}
	defer func() {
		log.Info("stopping supervisor")
		supervisor.Stop()
	}()

	if a.cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:  a.cfg.API,
			Logger:  log,
			Sync:    supervisor,
			Configs: a.configs,
			History: a.audit,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"storage_dir", a.cfg.Storage.Dir,
		"bridges", supervisor.Bridges(),
		"reload_mode", a.cfg.Reload.Mode,
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, supervisor, InfluxDB, MQTT.
	return nil
}

// healthCheck verifies every infrastructure connection. mqttClient and
// influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
