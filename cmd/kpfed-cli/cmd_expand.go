package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/kpfed/client"
)

type expandFlags struct {
	provider              string
	mode                  string
	edges                 []string
	nodes                 []string
	timeout               time.Duration
	continueIfNoResults   bool
	enforceDirectionality bool
	noSynonyms            bool
	synonymHandling       string
}

func newExpandCmd() *cobra.Command {
	var f expandFlags

	cmd := &cobra.Command{
		Use:   "expand <file|->",
		Short: "Expand a query graph",
		Long: `Expand a query graph read from a JSON file (or stdin with "-").

The file holds either a full expand request or a bare query graph
({"nodes": ..., "edges": ...}). Flags override fields of the request.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			req, err := buildExpandRequest(raw, f)
			if err != nil {
				return err
			}

			resp, err := apiClient.Expand(cmd.Context(), req)
			if err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) && apiErr.Partial != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "Partial result follows.")
					_ = writeExpand(cmd.OutOrStdout(), apiErr.Partial)
				}
				return fmt.Errorf("expand: %w", err)
			}

			return writeExpand(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&f.provider, "provider", "", "Query only this provider (infores curie)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "Provider dispatch: serial|concurrent")
	cmd.Flags().StringSliceVar(&f.edges, "edge", nil, "Query edge keys to expand (repeatable)")
	cmd.Flags().StringSliceVar(&f.nodes, "node", nil, "Query node keys to expand (repeatable)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-provider timeout, e.g. 90s")
	cmd.Flags().BoolVar(&f.continueIfNoResults, "continue-if-no-results", false, "Keep going when a hop returns nothing")
	cmd.Flags().BoolVar(&f.enforceDirectionality, "enforce-directionality", false, "Only use providers that support the edge as written")
	cmd.Flags().BoolVar(&f.noSynonyms, "no-synonyms", false, "Send only the given ids to providers")
	cmd.Flags().StringVar(&f.synonymHandling, "synonym-handling", "", "map_back|add_all")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path) //nolint:gosec // user-supplied input file
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return raw, nil
}

// buildExpandRequest accepts a full request or a bare query graph and applies flag overrides.
func buildExpandRequest(raw []byte, f expandFlags) (*client.ExpandRequest, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("parsing input: %w", err)
	}

	req := &client.ExpandRequest{}
	if _, ok := envelope["query_graph"]; ok {
		if err := json.Unmarshal(raw, req); err != nil {
			return nil, fmt.Errorf("parsing expand request: %w", err)
		}
	} else {
		var qg client.QueryGraph
		if err := json.Unmarshal(raw, &qg); err != nil {
			return nil, fmt.Errorf("parsing query graph: %w", err)
		}
		req.QueryGraph = &qg
	}

	if req.QueryGraph == nil || len(req.QueryGraph.Nodes) == 0 {
		return nil, errors.New("input has no query graph nodes")
	}

	if f.provider != "" {
		req.Provider = f.provider
	}
	if f.mode != "" {
		req.Mode = f.mode
	}
	if len(f.edges) > 0 {
		req.EdgeKeys = f.edges
	}
	if len(f.nodes) > 0 {
		req.NodeKeys = f.nodes
	}
	if f.timeout > 0 {
		req.TimeoutSeconds = int(f.timeout.Round(time.Second) / time.Second)
		if req.TimeoutSeconds == 0 {
			req.TimeoutSeconds = 1
		}
	}
	if f.continueIfNoResults {
		req.ContinueIfNoResults = true
	}
	if f.enforceDirectionality {
		req.EnforceDirectionality = true
	}
	if f.noSynonyms {
		off := false
		req.UseSynonyms = &off
	}
	if f.synonymHandling != "" {
		req.SynonymHandling = f.synonymHandling
	}

	return req, nil
}

func writeExpand(w io.Writer, resp *client.ExpandResponse) error {
	if flagFmt != "table" {
		return output(w, resp, resp.ExpansionID)
	}

	fmt.Fprintf(w, "Expansion %s: %d nodes, %d edges", resp.ExpansionID, resp.NodeCount, resp.EdgeCount)
	if resp.PrunedNodes > 0 || resp.PrunedEdges > 0 {
		fmt.Fprintf(w, " (pruned %d nodes, %d edges)", resp.PrunedNodes, resp.PrunedEdges)
	}
	if resp.StoppedEarly {
		fmt.Fprint(w, " [stopped early]")
	}
	fmt.Fprintln(w)

	if rows := roleCounts(resp.KnowledgeGraph); len(rows) > 0 {
		fmt.Fprintln(w)
		formatTable(w, []string{"QNODE", "NODES"}, rows)
	}

	fmt.Fprintln(w)
	formatTable(w, []string{"ROLE", "PROVIDER", "STATE", "MESSAGE"}, traceRows(resp.Trace))
	return nil
}

func traceRows(entries []client.TraceEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		role := e.QEdgeKey
		if role == "" {
			role = e.QNodeKey
		}
		rows = append(rows, []string{role, e.Provider, e.State, truncate(e.Message, 80)})
	}
	return rows
}

// roleCounts tallies knowledge graph nodes per query node role.
func roleCounts(kg *client.KnowledgeGraph) [][]string {
	if kg == nil {
		return nil
	}
	counts := map[string]int{}
	for _, n := range kg.Nodes {
		for _, k := range n.QNodeKeys {
			counts[k]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.Itoa(counts[k])})
	}
	return rows
}
