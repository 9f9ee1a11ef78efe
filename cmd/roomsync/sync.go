package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homekit-room-sync/internal/audit"
	"github.com/nerrad567/homekit-room-sync/internal/bridgeconfig"
	"github.com/nerrad567/homekit-room-sync/internal/homekit"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/mqtt"
	"github.com/nerrad567/homekit-room-sync/internal/roomsync"
)

// errRequestNeedsMQTT is returned by sync --request when MQTT is disabled.
var errRequestNeedsMQTT = errors.New("sync --request needs mqtt.enabled")

func newSyncCmd(open opener) *cobra.Command {
	var request bool

	cmd := &cobra.Command{
		Use:   "sync [bridge]",
		Short: "Run one sync pass now",
		Long: `sync runs a single pass for the named bridge, or for every configured
bridge when no name is given, and reports what changed.

The pass runs in this process. Its lock is not shared with a running
"roomsync serve", so a pass here can overlap one in the service on the same
state file. While the service is running use --request, which asks the
service over MQTT to run the pass itself; its outcome is published on
roomsync/sync/<bridge>/result and shown by "roomsync history".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if request && !a.cfg.MQTT.Enabled {
				return errRequestNeedsMQTT
			}

			var configs []bridgeconfig.BridgeConfig
			if len(args) == 1 {
				cfg, err := a.configs.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("bridge %s: %w", args[0], err)
				}
				configs = append(configs, *cfg)
			} else {
				configs, err = a.configs.List(cmd.Context())
				if err != nil {
					return err
				}
			}
			if len(configs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no bridges configured")
				return nil
			}

			var bus homekit.MessageBus
			client, err := a.connectMQTTTransient()
			if err != nil {
				return err
			}
			if request {
				defer client.Close()
				return requestSync(cmd.OutOrStdout(), client, configs)
			}
			if client != nil {
				defer client.Close()
				bus = &mqttBus{client: client}
			}

			supervisor := roomsync.NewSupervisor(roomsync.SupervisorOptions{
				StorageDir:  a.cfg.Storage.Dir,
				Registries:  a.registries,
				Configs:     a.configs,
				NewReloader: newReloaderFactory(a.cfg, bus),
				Bus:         bus,
				QoS:         byte(a.cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
				Recorder:    a.auditRecorder(audit.SourceCLI),
				Logger:      a.log,
			})
			defer supervisor.Stop()

			var failed int
			for _, cfg := range configs {
				if err := supervisor.Setup(cmd.Context(), cfg); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", cfg.Name, err)
					failed++
					continue
				}
				res, err := supervisor.SyncNow(cmd.Context(), cfg.Name)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				if !res.OK() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d bridges failed", failed, len(configs))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&request, "request", false, "ask the running service to sync instead of syncing here")
	return cmd
}

// requestSync publishes a sync request per bridge for the running service.
func requestSync(w io.Writer, client *mqtt.Client, configs []bridgeconfig.BridgeConfig) error {
	topics := mqtt.Topics{}
	for _, cfg := range configs {
		if err := client.Publish(topics.SyncRequest(cfg.Name), nil, client.QoS(), false); err != nil {
			return fmt.Errorf("requesting sync of %s: %w", cfg.Name, err)
		}
		fmt.Fprintf(w, "%s: sync requested\n", cfg.Name)
	}
	return nil
}

func printResult(w io.Writer, res roomsync.Result) {
	switch res.State {
	case roomsync.StateUnchanged:
		fmt.Fprintf(w, "%s: unchanged\n", res.Bridge)
	case roomsync.StateWritten:
		reload := "reloaded"
		if res.ReloadErr != nil {
			reload = "reload failed: " + res.ReloadErr.Error()
		}
		fmt.Fprintf(w, "%s: %d changed, %s\n", res.Bridge, len(res.Changes), reload)
		for _, c := range res.Changes {
			from := "(none)"
			if c.From != nil {
				from = *c.From
			}
			fmt.Fprintf(w, "  %s: %s -> %s\n", c.EntityID, from, c.To)
		}
	default:
		msg := "failed"
		if errors.Is(res.Err, homekit.ErrNotFound) {
			msg = "state file not found"
		}
		fmt.Fprintf(w, "%s: %s: %v\n", res.Bridge, msg, res.Err)
	}
}
