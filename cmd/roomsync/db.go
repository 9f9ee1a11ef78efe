package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDBCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or roll back the database schema",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List applied schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			applied, pending, err := a.db.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "database: %s\n", a.db.Path())
			for _, m := range applied {
				fmt.Fprintf(out, "  %s  applied %s\n", m.Version, m.AppliedAt.Local().Format(time.DateTime))
			}
			for _, m := range pending {
				fmt.Fprintf(out, "  %s  pending (%s)\n", m.Version, m.Name)
			}
			return nil
		},
	}

	rollback := &cobra.Command{
		Use:   "rollback",
		Short: "Undo the most recent schema migration",
		Long: `rollback reverts the newest applied migration. Run it before installing
an older build; any roomsync command of this build re-applies the migration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			applied, _, err := a.db.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
				return nil
			}
			if err := a.db.MigrateDown(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", applied[len(applied)-1].Version)
			return nil
		},
	}

	cmd.AddCommand(status, rollback)
	return cmd
}
