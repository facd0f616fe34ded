// Package planner orders the edges of a query graph into a traversal sequence.
package planner

import (
	"fmt"

	"github.com/persistorai/kpfed/internal/models"
)

// Neighbors names the edge roles immediately before and after a node role in traversal order.
// An empty string means there is no edge on that side.
type Neighbors struct {
	Left  string `json:"left,omitempty"`
	Right string `json:"right,omitempty"`
}

// Plan is the traversal order for one expansion.
type Plan struct {
	Edges     []string             `json:"edges"`
	Nodes     []string             `json:"nodes"`
	Adjacency map[string]Neighbors `json:"adjacency"`
	// Linear is false for branching or disconnected graphs. Nodes and Adjacency are
	// only meaningful for linear plans.
	Linear bool `json:"linear"`
}

// Build orders the edges of qg and derives the node sequence and adjacency map.
func Build(qg *models.QueryGraph) (*Plan, error) {
	for key, e := range qg.Edges {
		if _, ok := qg.Nodes[e.Subject]; !ok {
			return nil, fmt.Errorf("%w: edge %s references unknown node %q", models.ErrInvalidQuery, key, e.Subject)
		}

		if _, ok := qg.Nodes[e.Object]; !ok {
			return nil, fmt.Errorf("%w: edge %s references unknown node %q", models.ErrInvalidQuery, key, e.Object)
		}
	}

	p := &Plan{Edges: OrderEdges(qg), Adjacency: map[string]Neighbors{}}
	if len(p.Edges) == 0 {
		return p, nil
	}

	nodes, ok := OrderNodes(qg, p.Edges)
	p.Nodes = nodes
	p.Linear = ok

	if ok {
		for i, n := range nodes {
			var nb Neighbors
			if i > 0 {
				nb.Left = p.Edges[i-1]
			}

			if i < len(p.Edges) {
				nb.Right = p.Edges[i]
			}

			p.Adjacency[n] = nb
		}
	}

	return p, nil
}

// OrderEdges returns the edge roles of qg in traversal order. The seed is the
// lowest-id edge with a node carrying concrete ids, else the lowest edge id.
// Edges connected to the rightmost edge are appended, otherwise edges
// connected to the leftmost edge are prepended. Anything left unconnected is
// appended in id order.
func OrderEdges(qg *models.QueryGraph) []string {
	remaining := qg.EdgeKeys()
	if len(remaining) == 0 {
		return nil
	}

	seed := 0
	for i, key := range remaining {
		e := qg.Edges[key]
		if len(qg.Nodes[e.Subject].IDs) > 0 || len(qg.Nodes[e.Object].IDs) > 0 {
			seed = i
			break
		}
	}

	ordered := []string{remaining[seed]}
	remaining = append(remaining[:seed], remaining[seed+1:]...)

	for len(remaining) > 0 {
		if i := connected(qg, remaining, ordered[len(ordered)-1]); i >= 0 {
			ordered = append(ordered, remaining[i])
			remaining = append(remaining[:i], remaining[i+1:]...)

			continue
		}

		if i := connected(qg, remaining, ordered[0]); i >= 0 {
			ordered = append([]string{remaining[i]}, ordered...)
			remaining = append(remaining[:i], remaining[i+1:]...)

			continue
		}

		ordered = append(ordered, remaining[0])
		remaining = remaining[1:]
	}

	return ordered
}

func connected(qg *models.QueryGraph, candidates []string, to string) int {
	target := qg.Edges[to]
	for i, key := range candidates {
		e := qg.Edges[key]
		if target.Touches(e.Subject) || target.Touches(e.Object) {
			return i
		}
	}

	return -1
}

// OrderNodes returns the node roles along an ordered edge sequence and
// whether the sequence forms a simple chain.
func OrderNodes(qg *models.QueryGraph, edges []string) ([]string, bool) {
	if len(edges) == 0 {
		return nil, false
	}

	if len(edges) == 1 {
		e := qg.Edges[edges[0]]
		return []string{e.Subject, e.Object}, e.Subject != e.Object
	}

	first, ok := exclusive(qg.Edges[edges[0]], qg.Edges[edges[1]])
	if !ok {
		return nil, false
	}

	nodes := []string{first}
	for i := 0; i < len(edges)-1; i++ {
		shared, ok := common(qg.Edges[edges[i]], qg.Edges[edges[i+1]])
		if !ok {
			return nil, false
		}

		nodes = append(nodes, shared)
	}

	last, ok := exclusive(qg.Edges[edges[len(edges)-1]], qg.Edges[edges[len(edges)-2]])
	if !ok {
		return nil, false
	}

	nodes = append(nodes, last)

	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if seen[n] {
			return nil, false
		}

		seen[n] = true
	}

	return nodes, true
}

// common returns the single node role shared by a and b.
func common(a, b models.QEdge) (string, bool) {
	switch {
	case a.Subject == a.Object:
		return "", false
	case b.Touches(a.Subject) && !b.Touches(a.Object):
		return a.Subject, true
	case b.Touches(a.Object) && !b.Touches(a.Subject):
		return a.Object, true
	default:
		return "", false
	}
}

// exclusive returns the endpoint of a that b does not touch.
func exclusive(a, b models.QEdge) (string, bool) {
	shared, ok := common(a, b)
	if !ok {
		return "", false
	}

	return a.OtherEnd(shared), true
}
