// Package models defines the TRAPI wire types and the expansion request and response types.
package models

import (
	"fmt"
	"sort"
)

// QNode is a node role in a query graph.
type QNode struct {
	IDs           []string `json:"ids,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	IsSet         bool     `json:"is_set"`
	OptionGroupID *string  `json:"option_group_id,omitempty"`
}

// QEdge is an edge role in a query graph.
type QEdge struct {
	Subject       string   `json:"subject"`
	Object        string   `json:"object"`
	Predicates    []string `json:"predicates,omitempty"`
	OptionGroupID *string  `json:"option_group_id,omitempty"`
}

// QueryGraph is a pattern of node and edge roles to match against provider data.
type QueryGraph struct {
	Nodes map[string]QNode `json:"nodes"`
	Edges map[string]QEdge `json:"edges"`
}

// NewQueryGraph returns an empty query graph with initialized maps.
func NewQueryGraph() *QueryGraph {
	return &QueryGraph{Nodes: map[string]QNode{}, Edges: map[string]QEdge{}}
}

// Clone returns a deep copy of the query graph.
func (qg *QueryGraph) Clone() *QueryGraph {
	out := NewQueryGraph()
	for key, n := range qg.Nodes {
		n.IDs = append([]string(nil), n.IDs...)
		n.Categories = append([]string(nil), n.Categories...)
		out.Nodes[key] = n
	}

	for key, e := range qg.Edges {
		e.Predicates = append([]string(nil), e.Predicates...)
		out.Edges[key] = e
	}

	return out
}

// NodeKeys returns the node roles in sorted order.
func (qg *QueryGraph) NodeKeys() []string {
	keys := make([]string, 0, len(qg.Nodes))
	for k := range qg.Nodes {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// EdgeKeys returns the edge roles in sorted order.
func (qg *QueryGraph) EdgeKeys() []string {
	keys := make([]string, 0, len(qg.Edges))
	for k := range qg.Edges {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// MaxIDCount returns the largest number of concrete ids carried by any node role.
func (qg *QueryGraph) MaxIDCount() int {
	n := 0
	for _, node := range qg.Nodes {
		if len(node.IDs) > n {
			n = len(node.IDs)
		}
	}

	return n
}

// OrphanNodeKeys returns the node roles not referenced by any edge.
func (qg *QueryGraph) OrphanNodeKeys() []string {
	used := make(map[string]bool, len(qg.Nodes))
	for _, e := range qg.Edges {
		used[e.Subject] = true
		used[e.Object] = true
	}

	var out []string
	for _, k := range qg.NodeKeys() {
		if !used[k] {
			out = append(out, k)
		}
	}

	return out
}

// Validate checks that every edge references existing node roles.
func (qg *QueryGraph) Validate() error {
	if len(qg.Nodes) == 0 {
		return fmt.Errorf("%w: query graph has no nodes", ErrInvalidQuery)
	}

	for key, e := range qg.Edges {
		if _, ok := qg.Nodes[e.Subject]; !ok {
			return fmt.Errorf("%w: edge %s references unknown subject %q", ErrInvalidQuery, key, e.Subject)
		}

		if _, ok := qg.Nodes[e.Object]; !ok {
			return fmt.Errorf("%w: edge %s references unknown object %q", ErrInvalidQuery, key, e.Object)
		}
	}

	return nil
}

// OtherEnd returns the endpoint of e that is not nodeKey.
func (e QEdge) OtherEnd(nodeKey string) string {
	if e.Subject == nodeKey {
		return e.Object
	}

	return e.Subject
}

// Touches reports whether the edge has nodeKey as an endpoint.
func (e QEdge) Touches(nodeKey string) bool {
	return e.Subject == nodeKey || e.Object == nodeKey
}
