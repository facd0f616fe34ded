package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server liveness and readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			h, err := apiClient.Health(ctx)
			if err != nil {
				return fmt.Errorf("health: %w", err)
			}

			ready := "ready"
			if _, err := apiClient.Ready(ctx); err != nil {
				ready = "not ready"
			}

			if flagFmt == "json" {
				return formatJSON(w, map[string]any{"health": h, "ready": ready == "ready"})
			}

			fmt.Fprintf(w, "Server:    v%s (%s)\n", h.Version, h.Status)
			fmt.Fprintf(w, "Readiness: %s\n", ready)
			fmt.Fprintf(w, "Providers: %d\n", h.Providers)
			fmt.Fprintf(w, "Database:  %s\n", h.Database)
			fmt.Fprintf(w, "WS:        %d clients\n", h.WSClients)
			fmt.Fprintf(w, "Uptime:    %.0fs\n", h.UptimeSeconds)
			return nil
		},
	}
}
