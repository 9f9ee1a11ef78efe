package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homekit-room-sync/internal/audit"
)

func newHistoryCmd(open opener) *cobra.Command {
	var action string
	var limit int

	cmd := &cobra.Command{
		Use:   "history [bridge]",
		Short: "Show recent sync passes and configuration changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			filter := audit.Filter{Action: action, Limit: limit}
			if len(args) == 1 {
				filter.EntityType = audit.EntityBridge
				filter.EntityID = args[0]
			}
			res, err := a.audit.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(res.Logs) == 0 {
				fmt.Fprintln(out, "no history")
				return nil
			}
			for _, entry := range res.Logs {
				target := entry.EntityID
				if target == "" {
					target = entry.EntityType
				}
				fmt.Fprintf(out, "%s  %-15s %-12s %-8s %s\n",
					entry.CreatedAt.Local().Format(time.DateTime), entry.Action, target, entry.Source,
					summarizeDetails(entry))
			}
			if res.Total > len(res.Logs) {
				fmt.Fprintf(out, "(%d of %d entries)\n", len(res.Logs), res.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "only show entries with this action (sync, bridge_add, ...)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	return cmd
}

// summarizeDetails renders an entry's details on one line.
func summarizeDetails(entry audit.AuditLog) string {
	d := entry.Details
	if entry.Action == audit.ActionSync {
		summary := fmt.Sprintf("%v, %v changed", d["state"], d["changed"])
		if reloaded, _ := d["reloaded"].(bool); reloaded {
			summary += ", reloaded"
		}
		if msg, ok := d["error"].(string); ok {
			summary += ": " + msg
		} else if msg, ok := d["reload_error"].(string); ok {
			summary += " (reload failed: " + msg + ")"
		}
		return summary
	}

	parts := make([]string, 0, len(d))
	for _, k := range slices.Sorted(maps.Keys(d)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, d[k]))
	}
	return strings.Join(parts, " ")
}
