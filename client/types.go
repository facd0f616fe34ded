package client

import (
	"encoding/json"
	"time"
)

// QNode is a node role in a query graph.
type QNode struct {
	IDs        []string `json:"ids,omitempty"`
	Categories []string `json:"categories,omitempty"`
	IsSet      bool     `json:"is_set,omitempty"`
}

// QEdge is an edge role in a query graph.
type QEdge struct {
	Subject    string   `json:"subject"`
	Object     string   `json:"object"`
	Predicates []string `json:"predicates,omitempty"`
}

// QueryGraph is the pattern to expand.
type QueryGraph struct {
	Nodes map[string]QNode `json:"nodes"`
	Edges map[string]QEdge `json:"edges"`
}

// Attribute is a typed property on a node or edge.
type Attribute struct {
	AttributeTypeID string `json:"attribute_type_id"`
	Value           any    `json:"value"`
	ValueTypeID     string `json:"value_type_id,omitempty"`
	AttributeSource string `json:"attribute_source,omitempty"`
}

// Node is a knowledge graph node with the role it fulfills.
type Node struct {
	Name       string      `json:"name,omitempty"`
	Categories []string    `json:"categories,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	QueryIDs   []string    `json:"query_ids,omitempty"`
	QNodeKeys  []string    `json:"qnode_keys,omitempty"`
}

// Edge is a knowledge graph edge with the role it fulfills.
type Edge struct {
	Subject    string      `json:"subject"`
	Object     string      `json:"object"`
	Predicate  string      `json:"predicate,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	QEdgeKeys  []string    `json:"qedge_keys,omitempty"`
}

// KnowledgeGraph holds expansion results keyed by entity id.
type KnowledgeGraph struct {
	Nodes map[string]Node `json:"nodes"`
	Edges map[string]Edge `json:"edges"`
}

// ExpandRequest is the body of POST /api/v1/expand.
type ExpandRequest struct {
	QueryGraph            *QueryGraph     `json:"query_graph"`
	KnowledgeGraph        *KnowledgeGraph `json:"knowledge_graph,omitempty"`
	EdgeKeys              []string        `json:"edge_keys,omitempty"`
	NodeKeys              []string        `json:"node_keys,omitempty"`
	Provider              string          `json:"provider,omitempty"`
	EnforceDirectionality bool            `json:"enforce_directionality,omitempty"`
	UseSynonyms           *bool           `json:"use_synonyms,omitempty"`
	SynonymHandling       string          `json:"synonym_handling,omitempty"`
	ContinueIfNoResults   bool            `json:"continue_if_no_results,omitempty"`
	TimeoutSeconds        int             `json:"timeout_seconds,omitempty"`
	Mode                  string          `json:"mode,omitempty"`
}

// TraceEntry is the outcome of one provider attempt.
type TraceEntry struct {
	ExpansionID string    `json:"expansion_id,omitempty"`
	QEdgeKey    string    `json:"qedge_key,omitempty"`
	QNodeKey    string    `json:"qnode_key,omitempty"`
	Provider    string    `json:"provider"`
	State       string    `json:"state"`
	Message     string    `json:"message"`
	ElapsedNS   int64     `json:"elapsed_ns,omitempty"`
	At          time.Time `json:"at"`
}

// ExpandResponse is the result of an expansion.
type ExpandResponse struct {
	ExpansionID    string          `json:"expansion_id"`
	KnowledgeGraph *KnowledgeGraph `json:"knowledge_graph"`
	Trace          []TraceEntry    `json:"trace"`
	NodeCount      int             `json:"node_count"`
	EdgeCount      int             `json:"edge_count"`
	StoppedEarly   bool            `json:"stopped_early,omitempty"`
	PrunedNodes    int             `json:"pruned_nodes,omitempty"`
	PrunedEdges    int             `json:"pruned_edges,omitempty"`
}

// ProviderSummary describes one directory provider.
type ProviderSummary struct {
	Infores        string   `json:"infores"`
	URL            string   `json:"url"`
	Categories     []string `json:"categories"`
	PredicateCount int      `json:"predicate_count"`
}

// ProvidersResponse lists directory providers.
type ProvidersResponse struct {
	UpdatedAt time.Time         `json:"updated_at"`
	Providers []ProviderSummary `json:"providers"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Database      string  `json:"database"`
	Providers     int     `json:"providers"`
	WSClients     int     `json:"ws_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ReadyResponse is returned by GET /api/v1/ready.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Event is one frame from the trace stream.
type Event struct {
	Type        string          `json:"type"`
	ID          uint64          `json:"id"`
	ExpansionID string          `json:"expansion_id"`
	Data        json.RawMessage `json:"data"`
	Time        time.Time       `json:"time"`
}
