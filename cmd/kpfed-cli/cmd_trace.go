package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/persistorai/kpfed/client"
)

func newTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace <expansion-id>",
		Short: "Replay the progress trace of a recent expansion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			err := apiClient.Events(cmd.Context(), args[0], func(ev client.Event) error {
				return printEvent(w, ev)
			})
			if errors.Is(err, client.ErrTraceExpired) {
				return fmt.Errorf("trace for %s is no longer available", args[0])
			}
			return err
		},
	}
}

func printEvent(w io.Writer, ev client.Event) error {
	if flagFmt == "json" {
		_, err := fmt.Fprintln(w, string(mustCompact(ev)))
		return err
	}

	switch ev.Type {
	case "trace":
		var e client.TraceEntry
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return fmt.Errorf("decode trace entry: %w", err)
		}
		role := e.QEdgeKey
		if role == "" {
			role = e.QNodeKey
		}
		fmt.Fprintf(w, "%s  %-6s %-28s %-10s %s\n", ev.Time.Format("15:04:05"), role, e.Provider, e.State, e.Message)
	case "finished":
		fmt.Fprintf(w, "%s  finished %s\n", ev.Time.Format("15:04:05"), string(ev.Data))
	}
	return nil
}

func mustCompact(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}
