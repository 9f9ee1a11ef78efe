package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homekit-room-sync/internal/audit"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/mqtt"
	"github.com/nerrad567/homekit-room-sync/internal/registry"
)

func newRegistryCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the area, device and entity registries",
	}

	importCmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Replace the registries with the contents of a YAML export",
		Long: `import replaces every area, device and entity with the ones in the file.

Example file:
  areas:
    - id: kitchen
      name: Kitchen
  devices:
    - id: hub1
      area_id: kitchen
  entities:
    - entity_id: light.kitchen
      device_id: hub1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := registry.ParseImportFile(args[0])
			if err != nil {
				return err
			}

			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.registries.Import(cmd.Context(), *data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d areas, %d devices, %d entities\n",
				len(data.Areas), len(data.Devices), len(data.Entities))
			a.record(cmd.Context(), audit.ActionRegistryImport, audit.EntityRegistry, "", map[string]any{
				"file":     args[0],
				"areas":    len(data.Areas),
				"devices":  len(data.Devices),
				"entities": len(data.Entities),
			})
			a.notify(mqtt.EventAreaRegistryUpdated, mqtt.EventEntityRegistryUpdated)
			return nil
		},
	}

	areas := &cobra.Command{
		Use:   "areas",
		Short: "List areas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.registries.ListAreas(cmd.Context())
			if err != nil {
				return err
			}
			for _, area := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%-36s %s\n", area.ID, area.Name)
			}
			return nil
		},
	}

	cmd.AddCommand(importCmd, areas)
	return cmd
}
