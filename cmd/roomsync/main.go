// Command roomsync keeps the room of every HomeKit bridge accessory in step
// with the area assigned to its entity in the home automation registry.
//
// Run "roomsync serve" for the long-running service; the other subcommands
// configure bridges, import the registry and run one-off passes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// opener loads configuration and opens the database for a subcommand.
type opener func(cmd *cobra.Command) (*app, error)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "roomsync",
		Short: "Sync HomeKit accessory rooms with registry areas",
		Long: `roomsync rewrites the room_name of each accessory in a HomeKit bridge
state file so it matches the area its entity (or the entity's device) is
assigned to, then asks the bridge to reload.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default: $ROOMSYNC_CONFIG or "+defaultConfigPath+")")

	// One-off commands log to stderr so their output stays readable; the
	// service logs wherever logging.output points.
	open := func(cmd *cobra.Command) (*app, error) {
		return openApp(cmd.Context(), getConfigPath(configPath), cmd.ErrOrStderr())
	}
	openService := func(cmd *cobra.Command) (*app, error) {
		return openApp(cmd.Context(), getConfigPath(configPath), nil)
	}

	root.AddCommand(
		newServeCmd(openService),
		newSyncCmd(open),
		newBridgesCmd(open),
		newBridgeCmd(open),
		newRegistryCmd(open),
		newHistoryCmd(open),
		newDBCmd(open),
		newVersionCmd(),
	)
	return root
}

// getConfigPath returns the configuration file path: the --config flag, then
// ROOMSYNC_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("ROOMSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the roomsync version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "roomsync %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
