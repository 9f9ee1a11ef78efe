package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homekit-room-sync/internal/audit"
	"github.com/nerrad567/homekit-room-sync/internal/bridgeconfig"
	"github.com/nerrad567/homekit-room-sync/internal/homekit"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/mqtt"
)

func newBridgesCmd(open opener) *cobra.Command {
	var availableOnly bool

	cmd := &cobra.Command{
		Use:   "bridges",
		Short: "List bridges found in the storage directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			out := cmd.OutOrStdout()

			if availableOnly {
				available, err := a.flow().AvailableBridges(cmd.Context())
				switch {
				case errors.Is(err, bridgeconfig.ErrNoBridges):
					fmt.Fprintln(out, "no HomeKit bridges found in", a.cfg.Storage.Dir)
					return nil
				case errors.Is(err, bridgeconfig.ErrAllConfigured):
					fmt.Fprintln(out, "every bridge is configured already")
					return nil
				case err != nil:
					return err
				}
				for _, name := range available {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			discovered, err := homekit.ListBridges(a.cfg.Storage.Dir)
			if err != nil {
				return err
			}
			configs, err := a.configs.List(cmd.Context())
			if err != nil {
				return err
			}
			byName := make(map[string]bridgeconfig.BridgeConfig, len(configs))
			for _, c := range configs {
				byName[c.Name] = c
			}

			for _, name := range discovered {
				c, ok := byName[name]
				switch {
				case !ok:
					fmt.Fprintf(out, "%-20s available\n", name)
				case c.DefaultRoom != nil:
					fmt.Fprintf(out, "%-20s configured (default room %q)\n", name, *c.DefaultRoom)
				default:
					fmt.Fprintf(out, "%-20s configured\n", name)
				}
				delete(byName, name)
			}
			// Configured bridges whose state file has gone.
			for _, c := range configs {
				if _, missing := byName[c.Name]; missing {
					fmt.Fprintf(out, "%-20s configured, state file missing\n", c.Name)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&availableOnly, "available", false, "only list bridges that are not configured yet")
	return cmd
}

func newBridgeCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Configure which bridges are synced",
	}

	var defaultRoom string
	add := &cobra.Command{
		Use:   "add <bridge>",
		Short: "Start syncing a discovered bridge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			cfg, err := a.flow().Create(cmd.Context(), args[0], defaultRoom)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", cfg.Title)
			a.record(cmd.Context(), audit.ActionBridgeAdd, audit.EntityBridge, cfg.Name,
				map[string]any{"default_room": cfg.DefaultRoomOrEmpty()})
			a.notify(mqtt.EventBridgeConfigUpdated)
			return nil
		},
	}
	add.Flags().StringVar(&defaultRoom, "default-room", "", "room for entities without an area (must be an area name)")

	remove := &cobra.Command{
		Use:   "remove <bridge>",
		Short: "Stop syncing a bridge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.flow().Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			a.record(cmd.Context(), audit.ActionBridgeRemove, audit.EntityBridge, args[0], nil)
			a.notify(mqtt.EventBridgeConfigUpdated)
			return nil
		},
	}

	setRoom := &cobra.Command{
		Use:   "set-room <bridge> [room]",
		Short: "Change a bridge's default room; omit the room to clear it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			room := ""
			if len(args) == 2 {
				room = args[1]
			}
			cfg, err := a.flow().UpdateDefaultRoom(cmd.Context(), args[0], room)
			if err != nil {
				return err
			}
			if cfg.DefaultRoom == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: default room cleared\n", cfg.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: default room %q\n", cfg.Name, *cfg.DefaultRoom)
			}
			a.record(cmd.Context(), audit.ActionDefaultRoom, audit.EntityBridge, cfg.Name,
				map[string]any{"default_room": cfg.DefaultRoomOrEmpty()})
			a.notify(mqtt.EventBridgeConfigUpdated)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List configured bridges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			configs, err := a.configs.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(configs) == 0 {
				fmt.Fprintln(out, "no bridges configured")
				return nil
			}
			for _, c := range configs {
				room := "-"
				if c.DefaultRoom != nil {
					room = *c.DefaultRoom
				}
				fmt.Fprintf(out, "%-20s %-24s v%d  %s\n", c.Name, room, c.Version, c.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}

	rooms := &cobra.Command{
		Use:   "rooms",
		Short: "List the area names a default room can be set to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			options, err := a.flow().RoomOptions(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range options {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.AddCommand(add, remove, setRoom, list, rooms)
	return cmd
}
