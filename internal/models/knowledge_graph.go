package models

// Attribute is a typed property attached to a node or edge.
type Attribute struct {
	AttributeTypeID       string `json:"attribute_type_id"`
	Value                 any    `json:"value"`
	ValueTypeID           string `json:"value_type_id,omitempty"`
	OriginalAttributeName string `json:"original_attribute_name,omitempty"`
	AttributeSource       string `json:"attribute_source,omitempty"`
}

// Node is a concrete entity returned by a provider.
type Node struct {
	Name       string      `json:"name,omitempty"`
	Categories []string    `json:"categories,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	// QueryIDs holds the input ids this node was matched against, when they differ from its key.
	QueryIDs  []string `json:"query_ids,omitempty"`
	QNodeKeys []string `json:"qnode_keys,omitempty"`
}

// Edge is a concrete relationship returned by a provider.
type Edge struct {
	Subject    string      `json:"subject"`
	Object     string      `json:"object"`
	Predicate  string      `json:"predicate,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	QEdgeKeys  []string    `json:"qedge_keys,omitempty"`
}

// KnowledgeGraph holds entities keyed by their ids.
type KnowledgeGraph struct {
	Nodes map[string]Node `json:"nodes"`
	Edges map[string]Edge `json:"edges"`
}

// NewKnowledgeGraph returns an empty knowledge graph with initialized maps.
func NewKnowledgeGraph() *KnowledgeGraph {
	return &KnowledgeGraph{Nodes: map[string]Node{}, Edges: map[string]Edge{}}
}

// NodeBinding binds a knowledge graph node to a query node role.
type NodeBinding struct {
	ID      string `json:"id"`
	QueryID string `json:"query_id,omitempty"`
}

// EdgeBinding binds a knowledge graph edge to a query edge role.
type EdgeBinding struct {
	ID string `json:"id"`
}

// Result is one answer row from a provider.
type Result struct {
	NodeBindings map[string][]NodeBinding `json:"node_bindings"`
	EdgeBindings map[string][]EdgeBinding `json:"edge_bindings"`
}

// Message is the TRAPI message envelope.
type Message struct {
	QueryGraph     *QueryGraph     `json:"query_graph,omitempty"`
	KnowledgeGraph *KnowledgeGraph `json:"knowledge_graph,omitempty"`
	Results        []Result        `json:"results,omitempty"`
}

// Query is the request body sent to a provider's /query endpoint.
type Query struct {
	Message               Message `json:"message"`
	Submitter             string  `json:"submitter,omitempty"`
	ReturnMinimalMetadata bool    `json:"return_minimal_metadata,omitempty"`
}

// Response is the body returned from a provider's /query endpoint.
type Response struct {
	Message *Message `json:"message"`
}

// MetaNode lists the id prefixes a provider accepts for one category.
type MetaNode struct {
	IDPrefixes []string `json:"id_prefixes"`
}

// MetaEdge is one subject-predicate-object triple a provider can answer.
type MetaEdge struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// MetaKnowledgeGraph is the body of a provider's /meta_knowledge_graph endpoint.
type MetaKnowledgeGraph struct {
	Nodes map[string]MetaNode `json:"nodes"`
	Edges []MetaEdge          `json:"edges"`
}
