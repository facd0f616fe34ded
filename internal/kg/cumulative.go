package kg

import (
	"fmt"

	"github.com/persistorai/kpfed/internal/models"
)

// Cumulative is the result graph of one expansion. Every entity key is bound to
// exactly one role. It is not safe for concurrent use; callers serialize merges.
type Cumulative struct {
	g        *Graph
	nodeRole map[string]string
	edgeRole map[string]string
}

// NewCumulative returns an empty cumulative graph.
func NewCumulative() *Cumulative {
	return &Cumulative{g: NewGraph(), nodeRole: map[string]string{}, edgeRole: map[string]string{}}
}

// FromKnowledgeGraph seeds a cumulative graph from the output of an earlier
// expansion. Each entity must carry exactly one role key.
func FromKnowledgeGraph(in *models.KnowledgeGraph) (*Cumulative, error) {
	c := NewCumulative()
	if in == nil {
		return c, nil
	}

	for _, key := range sortedKeys(in.Nodes) {
		n := in.Nodes[key]

		role, err := singleRole("node", key, n.QNodeKeys)
		if err != nil {
			return nil, err
		}

		n.QNodeKeys = nil
		if err := c.AdmitNode(key, n, role); err != nil {
			return nil, err
		}
	}

	for _, key := range sortedKeys(in.Edges) {
		e := in.Edges[key]

		role, err := singleRole("edge", key, e.QEdgeKeys)
		if err != nil {
			return nil, err
		}

		e.QEdgeKeys = nil
		if err := c.AdmitEdge(key, e, role); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func singleRole(kind, key string, roles []string) (string, error) {
	switch len(roles) {
	case 0:
		return "", fmt.Errorf("%w: %s %s has no query graph binding", models.ErrMissingProperty, kind, key)
	case 1:
		return roles[0], nil
	default:
		return "", fmt.Errorf("%w: %s %s is bound to %v", models.ErrMultipleQGIDs, kind, key, roles)
	}
}

// AdmitNode binds key to role. Re-admitting the same key under the same role
// keeps the first value. A key already bound to another role is rejected.
func (c *Cumulative) AdmitNode(key string, n models.Node, role string) error {
	if role == "" {
		return fmt.Errorf("%w: node %s has no query graph binding", models.ErrMissingProperty, key)
	}

	if existing, ok := c.nodeRole[key]; ok {
		if existing != role {
			return fmt.Errorf("%w: node %s was returned for %s and %s", models.ErrMultipleQGIDs, key, existing, role)
		}

		return nil
	}

	c.g.AddNode(key, n, role)
	c.nodeRole[key] = role

	return nil
}

// AdmitEdge binds key to role with the same rules as AdmitNode.
func (c *Cumulative) AdmitEdge(key string, e models.Edge, role string) error {
	if role == "" {
		return fmt.Errorf("%w: edge %s has no query graph binding", models.ErrMissingProperty, key)
	}

	if existing, ok := c.edgeRole[key]; ok {
		if existing != role {
			return fmt.Errorf("%w: edge %s was returned for %s and %s", models.ErrMultipleQGIDs, key, existing, role)
		}

		return nil
	}

	c.g.AddEdge(key, e, role)
	c.edgeRole[key] = role

	return nil
}

// RemoveNode deletes the node and every edge touching it. It returns the
// number of edges removed.
func (c *Cumulative) RemoveNode(key string) int {
	role, ok := c.nodeRole[key]
	if !ok {
		return 0
	}

	delete(c.g.Nodes[role], key)
	if len(c.g.Nodes[role]) == 0 {
		delete(c.g.Nodes, role)
	}

	delete(c.nodeRole, key)

	removed := 0
	for _, edgeKey := range c.IncidentEdges(key) {
		c.removeEdge(edgeKey)
		removed++
	}

	return removed
}

func (c *Cumulative) removeEdge(key string) {
	role, ok := c.edgeRole[key]
	if !ok {
		return
	}

	delete(c.g.Edges[role], key)
	if len(c.g.Edges[role]) == 0 {
		delete(c.g.Edges, role)
	}

	delete(c.edgeRole, key)
}

// IncidentEdges returns the keys of edges whose subject or object is nodeKey, sorted.
func (c *Cumulative) IncidentEdges(nodeKey string) []string {
	var out []string
	for _, key := range sortedKeys(c.edgeRole) {
		e := c.g.Edges[c.edgeRole[key]][key]
		if e.Subject == nodeKey || e.Object == nodeKey {
			out = append(out, key)
		}
	}

	return out
}

// HasRole reports whether any node is bound to role.
func (c *Cumulative) HasRole(role string) bool {
	return len(c.g.Nodes[role]) > 0
}

// NodeKeysFor returns the node keys bound to role, sorted.
func (c *Cumulative) NodeKeysFor(role string) []string {
	return sortedKeys(c.g.Nodes[role])
}

// NodeRole returns the role key is bound to.
func (c *Cumulative) NodeRole(key string) (string, bool) {
	role, ok := c.nodeRole[key]
	return role, ok
}

// EdgeRole returns the role key is bound to.
func (c *Cumulative) EdgeRole(key string) (string, bool) {
	role, ok := c.edgeRole[key]
	return role, ok
}

// Node returns the node stored under key.
func (c *Cumulative) Node(key string) (models.Node, bool) {
	role, ok := c.nodeRole[key]
	if !ok {
		return models.Node{}, false
	}

	return c.g.Nodes[role][key], true
}

// NodeCount returns the number of nodes.
func (c *Cumulative) NodeCount() int { return len(c.nodeRole) }

// EdgeCount returns the number of edges.
func (c *Cumulative) EdgeCount() int { return len(c.edgeRole) }

// KnowledgeGraph converts the cumulative graph into the caller-facing form,
// recording each entity's role in qnode_keys or qedge_keys.
func (c *Cumulative) KnowledgeGraph() *models.KnowledgeGraph {
	out := models.NewKnowledgeGraph()

	for key, role := range c.nodeRole {
		n := c.g.Nodes[role][key]
		n.QNodeKeys = []string{role}
		out.Nodes[key] = n
	}

	for key, role := range c.edgeRole {
		e := c.g.Edges[role][key]
		e.QEdgeKeys = []string{role}
		out.Edges[key] = e
	}

	return out
}
