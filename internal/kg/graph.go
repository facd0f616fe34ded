// Package kg holds knowledge graphs organized by query graph role and the
// operations that fold provider answers into one cumulative graph.
package kg

import (
	"sort"

	"github.com/persistorai/kpfed/internal/models"
)

// Graph is one provider answer organized by role: role -> entity key -> entity.
// A key may appear under more than one role; Cumulative rejects that on merge.
type Graph struct {
	Nodes map[string]map[string]models.Node
	Edges map[string]map[string]models.Edge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: map[string]map[string]models.Node{},
		Edges: map[string]map[string]models.Edge{},
	}
}

// AddNode stores n under role, replacing any node with the same key and role.
func (g *Graph) AddNode(key string, n models.Node, role string) {
	if g.Nodes[role] == nil {
		g.Nodes[role] = map[string]models.Node{}
	}

	g.Nodes[role][key] = n
}

// AddEdge stores e under role, replacing any edge with the same key and role.
func (g *Graph) AddEdge(key string, e models.Edge, role string) {
	if g.Edges[role] == nil {
		g.Edges[role] = map[string]models.Edge{}
	}

	g.Edges[role][key] = e
}

// Absorb copies entities from other that g does not already hold under the same role.
func (g *Graph) Absorb(other *Graph) {
	if other == nil {
		return
	}

	for role, nodes := range other.Nodes {
		for key, n := range nodes {
			if _, ok := g.Nodes[role][key]; !ok {
				g.AddNode(key, n, role)
			}
		}
	}

	for role, edges := range other.Edges {
		for key, e := range edges {
			if _, ok := g.Edges[role][key]; !ok {
				g.AddEdge(key, e, role)
			}
		}
	}
}

// NodeCount returns the number of distinct node keys.
func (g *Graph) NodeCount() int {
	return countKeys(g.Nodes)
}

// EdgeCount returns the number of distinct edge keys.
func (g *Graph) EdgeCount() int {
	return countKeys(g.Edges)
}

// EdgeCountFor returns the number of edges bound to role.
func (g *Graph) EdgeCountFor(role string) int {
	return len(g.Edges[role])
}

// IsEmpty reports whether the graph holds no nodes and no edges.
func (g *Graph) IsEmpty() bool {
	return g.NodeCount() == 0 && g.EdgeCount() == 0
}

func countKeys[T any](byRole map[string]map[string]T) int {
	seen := map[string]struct{}{}
	for _, entities := range byRole {
		for key := range entities {
			seen[key] = struct{}{}
		}
	}

	return len(seen)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
