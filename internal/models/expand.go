package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Synonym handling modes.
const (
	SynonymMapBack = "map_back"
	SynonymAddAll  = "add_all"
)

// Dispatch modes.
const (
	ModeSerial     = "serial"
	ModeConcurrent = "concurrent"
)

// MaxTimeoutSeconds caps the caller-supplied per-provider timeout.
const MaxTimeoutSeconds = 3600

var validate = validator.New()

// ExpandRequest is the payload for expanding part of a query graph.
type ExpandRequest struct {
	QueryGraph *QueryGraph `json:"query_graph" validate:"required"`
	// KnowledgeGraph seeds the cumulative graph with the output of an earlier expansion.
	KnowledgeGraph        *KnowledgeGraph `json:"knowledge_graph,omitempty"`
	EdgeKeys              []string        `json:"edge_keys,omitempty" validate:"omitempty,dive,required"`
	NodeKeys              []string        `json:"node_keys,omitempty" validate:"omitempty,dive,required"`
	Provider              string          `json:"provider,omitempty" validate:"omitempty,startswith=infores:"`
	EnforceDirectionality bool            `json:"enforce_directionality,omitempty"`
	UseSynonyms           *bool           `json:"use_synonyms,omitempty"`
	SynonymHandling       string          `json:"synonym_handling,omitempty" validate:"omitempty,oneof=map_back add_all"`
	ContinueIfNoResults   bool            `json:"continue_if_no_results,omitempty"`
	TimeoutSeconds        int             `json:"timeout_seconds,omitempty" validate:"gte=0"`
	Mode                  string          `json:"mode,omitempty" validate:"omitempty,oneof=serial concurrent"`
}

// Validate checks struct tags and the query graph, then fills in option defaults.
func (r *ExpandRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return formatValidationError(err)
	}

	if r.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("%w: TimeoutSeconds is out of range (max %d)", ErrValidation, MaxTimeoutSeconds)
	}

	if err := r.QueryGraph.Validate(); err != nil {
		return err
	}

	if r.UseSynonyms == nil {
		yes := true
		r.UseSynonyms = &yes
	}

	if r.SynonymHandling == "" {
		r.SynonymHandling = SynonymMapBack
	}

	if r.Mode == "" {
		r.Mode = ModeConcurrent
	}

	return nil
}

// Timeout returns the caller-supplied provider timeout, or zero when unset.
func (r *ExpandRequest) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// ErrValidation wraps struct-tag validation failures.
var ErrValidation = errors.New("validation failed")

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	e := verrs[0]
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", ErrValidation, e.Field())
	case "oneof":
		return fmt.Errorf("%w: %s must be one of [%s]", ErrValidation, e.Field(), e.Param())
	case "startswith":
		return fmt.Errorf("%w: %s must start with %q", ErrValidation, e.Field(), e.Param())
	case "gte", "lte":
		return fmt.Errorf("%w: %s is out of range", ErrValidation, e.Field())
	default:
		return fmt.Errorf("%w: %s failed %s", ErrValidation, e.Field(), e.Tag())
	}
}

// TraceState is the outcome of one provider attempt.
type TraceState string

// Trace states.
const (
	TraceWaiting  TraceState = "Waiting"
	TraceDone     TraceState = "Done"
	TraceSkipped  TraceState = "Skipped"
	TraceTimedOut TraceState = "Timed out"
	TraceError    TraceState = "Error"
)

// TraceEntry records the outcome of querying one provider for one edge or node role.
type TraceEntry struct {
	ExpansionID string        `json:"expansion_id,omitempty"`
	QEdgeKey    string        `json:"qedge_key,omitempty"`
	QNodeKey    string        `json:"qnode_key,omitempty"`
	Provider    string        `json:"provider"`
	State       TraceState    `json:"state"`
	Message     string        `json:"message"`
	Elapsed     time.Duration `json:"elapsed_ns,omitempty"`
	At          time.Time     `json:"at"`
}

// Target returns the role this entry is about.
func (e TraceEntry) Target() string {
	if e.QEdgeKey != "" {
		return e.QEdgeKey
	}

	return e.QNodeKey
}

// ExpandResponse is the result of an expansion.
type ExpandResponse struct {
	ExpansionID    string          `json:"expansion_id"`
	KnowledgeGraph *KnowledgeGraph `json:"knowledge_graph"`
	Trace          []TraceEntry    `json:"trace"`
	NodeCount      int             `json:"node_count"`
	EdgeCount      int             `json:"edge_count"`
	// StoppedEarly is set when a hop returned nothing and the caller did not ask to continue.
	StoppedEarly bool `json:"stopped_early,omitempty"`
	PrunedNodes  int  `json:"pruned_nodes,omitempty"`
	PrunedEdges  int  `json:"pruned_edges,omitempty"`
}

// ProviderSummary describes one provider known to the directory.
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
