package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/kpfed/client"
)

func newProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect the provider directory",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List providers in the current directory snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient.Providers.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list providers: %w", err)
			}
			return writeProviders(cmd.OutOrStdout(), resp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the directory from every provider's meta knowledge graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient.Providers.Refresh(cmd.Context())
			if client.IsConflict(err) {
				return fmt.Errorf("a refresh is already running")
			}
			if err != nil {
				return fmt.Errorf("refresh providers: %w", err)
			}
			return writeProviders(cmd.OutOrStdout(), resp)
		},
	})

	return cmd
}

func writeProviders(w io.Writer, resp *client.ProvidersResponse) error {
	switch flagFmt {
	case "table":
		rows := make([][]string, 0, len(resp.Providers))
		for _, p := range resp.Providers {
			rows = append(rows, []string{
				p.Infores, p.URL, strconv.Itoa(p.PredicateCount), truncate(strings.Join(p.Categories, ","), 60),
			})
		}
		fmt.Fprintf(w, "Snapshot updated %s\n\n", resp.UpdatedAt.Format(time.RFC3339))
		formatTable(w, []string{"PROVIDER", "URL", "PREDICATES", "CATEGORIES"}, rows)
		return nil
	case "quiet":
		for _, p := range resp.Providers {
			fmt.Fprintln(w, p.Infores)
		}
		return nil
	default:
		return formatJSON(w, resp)
	}
}
