package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/canon"
	"github.com/persistorai/kpfed/internal/domain"
	"github.com/persistorai/kpfed/internal/kg"
	"github.com/persistorai/kpfed/internal/metrics"
	"github.com/persistorai/kpfed/internal/models"
	"github.com/persistorai/kpfed/internal/trapi"
)

// Provenance attached to every edge that passes through the service.
const (
	AggregatorInfores        = "infores:kpfed"
	KnowledgeSourceAttr      = "biolink:knowledge_source"
	AggregatorSourceAttr     = "biolink:aggregator_knowledge_source"
	SubclassPredicate        = "biolink:subclass_of"
	DefaultProviderTimeout   = 120 * time.Second
	DefaultTrustedTimeout    = 600 * time.Second
	skippedNoSupportedCuries = "No equivalent curies with supported prefixes found"
)

// QuerierConfig configures a OneHopQuerier.
type QuerierConfig struct {
	// TrustedProvider skips the capability check, gets a longer timeout, and
	// receives the submitter tag with a minimal-metadata request.
	TrustedProvider string
	Submitter       string
	TrustedTimeout  time.Duration
	DefaultTimeout  time.Duration
	// WhitespaceProviders are known to pad curies with whitespace; their answers are trimmed.
	WhitespaceProviders []string
}

// QueryOptions are the per-call settings for one provider query.
type QueryOptions struct {
	UserSpecifiedProvider bool
	EnforceDirectionality bool
	// Timeout is the caller's per-provider timeout. Zero means the default.
	Timeout         time.Duration
	UseSynonyms     bool
	SynonymHandling string
	Trace           *Trace
}

// OneHopQuerier sends one-hop and single-node query graphs to one provider
// and turns the answer into a role-organized fragment. It is safe for
// concurrent use.
type OneHopQuerier struct {
	client   domain.ProviderClient
	selector domain.ProviderSelector
	canon    canon.Canonicalizer
	cfg      QuerierConfig
	log      *logrus.Logger
	now      func() time.Time
}

// NewOneHopQuerier creates a OneHopQuerier.
func NewOneHopQuerier(
	client domain.ProviderClient, selector domain.ProviderSelector, c canon.Canonicalizer, cfg QuerierConfig, log *logrus.Logger,
) *OneHopQuerier {
	if cfg.TrustedTimeout <= 0 {
		cfg.TrustedTimeout = DefaultTrustedTimeout
	}

	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultProviderTimeout
	}

	if cfg.Submitter == "" {
		cfg.Submitter = AggregatorInfores
	}

	return &OneHopQuerier{client: client, selector: selector, canon: c, cfg: cfg, log: log, now: time.Now}
}

// target identifies what a provider query is about in the trace.
type target struct {
	qedge string
	qnode string
}

func (t target) entry(provider string, state models.TraceState, msg string, elapsed time.Duration) models.TraceEntry {
	return models.TraceEntry{QEdgeKey: t.qedge, QNodeKey: t.qnode, Provider: provider, State: state, Message: msg, Elapsed: elapsed}
}

// AnswerOneHop answers a query graph with exactly one edge and two nodes.
// Provider failures yield an empty fragment and a trace entry, not an error.
func (q *OneHopQuerier) AnswerOneHop(ctx context.Context, qg *models.QueryGraph, provider string, opts QueryOptions) (*kg.Graph, error) {
	switch {
	case len(qg.Edges) != 1:
		return nil, fmt.Errorf("%w: one-hop query graph has %d edges", models.ErrInvalidQuery, len(qg.Edges))
	case len(qg.Nodes) > 2:
		return nil, fmt.Errorf("%w: one-hop query graph has more than two nodes", models.ErrInvalidQuery)
	case len(qg.Nodes) < 2:
		return nil, fmt.Errorf("%w: one-hop query graph has fewer than two nodes", models.ErrInvalidQuery)
	}

	t := target{qedge: qg.EdgeKeys()[0]}

	if opts.UserSpecifiedProvider && provider != q.cfg.TrustedProvider {
		ok, err := q.selector.KPAcceptsSingleHopQG(ctx, qg, provider, opts.EnforceDirectionality)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, fmt.Errorf("%w: %s cannot answer queries with the specified categories/predicates", models.ErrUnsupportedQG, provider)
		}
	}

	return q.answer(ctx, qg, provider, t, opts)
}

// AnswerSingleNode answers an edgeless query graph.
func (q *OneHopQuerier) AnswerSingleNode(ctx context.Context, qg *models.QueryGraph, provider string, opts QueryOptions) (*kg.Graph, error) {
	if len(qg.Edges) > 0 {
		return nil, fmt.Errorf("%w: single-node query graph has %d edges", models.ErrInvalidQuery, len(qg.Edges))
	}

	if len(qg.Nodes) == 0 {
		return nil, fmt.Errorf("%w: single-node query graph has no nodes", models.ErrInvalidQuery)
	}

	return q.answer(ctx, qg, provider, target{qnode: qg.NodeKeys()[0]}, opts)
}

func (q *OneHopQuerier) answer(ctx context.Context, qg *models.QueryGraph, provider string, t target, opts QueryOptions) (*kg.Graph, error) {
	// Roles queried with a list of ids get per-node query_id mappings.
	multi := map[string]bool{}
	for key, n := range qg.Nodes {
		if len(n.IDs) > 1 {
			multi[key] = true
		}
	}

	rewritten, err := q.selector.MakeQGUseSupportedPrefixes(ctx, qg, provider)
	if err != nil {
		return nil, err
	}

	if rewritten != nil && !opts.UseSynonyms {
		rewritten = keepOriginalIDs(rewritten, qg)
	}

	if rewritten == nil {
		opts.Trace.Record(t.entry(provider, models.TraceSkipped, skippedNoSupportedCuries, 0))
		metrics.ProviderRequestsTotal.WithLabelValues(provider, string(models.TraceSkipped)).Inc()

		return kg.NewGraph(), nil
	}

	url, err := q.selector.EndpointURL(ctx, provider)
	if err != nil {
		return nil, err
	}

	resp, ok := q.dispatch(ctx, rewritten, provider, url, t, opts)
	if !ok {
		return kg.NewGraph(), nil
	}

	frag := q.load(ctx, resp, provider, multi, opts)

	elapsed := resp.elapsed
	if t.qedge != "" {
		opts.Trace.Record(t.entry(provider, models.TraceDone,
			fmt.Sprintf("Returned %d edges in %d seconds", frag.EdgeCountFor(t.qedge), roundSeconds(elapsed)), elapsed))
	} else {
		opts.Trace.Record(t.entry(provider, models.TraceDone,
			fmt.Sprintf("Returned %d nodes in %d seconds", len(frag.Nodes[t.qnode]), roundSeconds(elapsed)), elapsed))
	}

	return frag, nil
}

// keepOriginalIDs drops synonym ids the rewrite introduced. It returns nil
// if a qnode with ids is left with none.
func keepOriginalIDs(rewritten, original *models.QueryGraph) *models.QueryGraph {
	for key, n := range rewritten.Nodes {
		orig := original.Nodes[key].IDs
		if len(orig) == 0 {
			continue
		}

		kept := n.IDs[:0]
		for _, id := range n.IDs {
			if slices.Contains(orig, id) {
				kept = append(kept, id)
			}
		}

		if len(kept) == 0 {
			return nil
		}

		n.IDs = kept
		rewritten.Nodes[key] = n
	}

	return rewritten
}

type sentResponse struct {
	*models.Response
	elapsed time.Duration
}

// dispatch sends the query and records the outcome. ok is false when the
// provider could not be reached or answered with an error.
func (q *OneHopQuerier) dispatch(
	ctx context.Context, qg *models.QueryGraph, provider, url string, t target, opts QueryOptions,
) (sentResponse, bool) {
	body := q.requestBody(qg, provider)
	timeout := q.timeout(provider, opts)

	opts.Trace.Record(t.entry(provider, models.TraceWaiting,
		fmt.Sprintf("Query with %d curies sent: waiting for response", qg.MaxIDCount()), 0))

	fields := logrus.Fields{"provider": provider, "url": url, "target": t.qedge + t.qnode}
	q.log.WithFields(fields).Debug("querier.send")

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := q.now()
	resp, err := q.client.Query(callCtx, provider, url, body)
	elapsed := q.now().Sub(start)

	state := models.TraceDone
	defer func() {
		metrics.ProviderRequestsTotal.WithLabelValues(provider, string(state)).Inc()
		metrics.ProviderRequestDuration.WithLabelValues(provider, string(state)).Observe(elapsed.Seconds())
	}()

	if err == nil {
		return sentResponse{Response: resp, elapsed: elapsed}, true
	}

	var msg string

	switch {
	case trapi.StatusCode(err) != 0:
		state = models.TraceError
		msg = fmt.Sprintf("Returned HTTP error %d after %d seconds", trapi.StatusCode(err), roundSeconds(elapsed))
	case trapi.IsTimeout(err) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		state = models.TraceTimedOut
		msg = fmt.Sprintf("Query timed out after %d seconds", roundSeconds(timeout))
	default:
		state = models.TraceError
		msg = fmt.Sprintf("Request threw exception after %d seconds", roundSeconds(elapsed))
	}

	q.log.WithFields(fields).WithError(err).Warn("querier." + strings.ReplaceAll(strings.ToLower(string(state)), " ", "_"))
	opts.Trace.Record(t.entry(provider, state, msg, elapsed))

	return sentResponse{}, false
}

func roundSeconds(d time.Duration) int {
	return int(math.Round(d.Seconds()))
}

func (q *OneHopQuerier) timeout(provider string, opts QueryOptions) time.Duration {
	switch {
	case provider == q.cfg.TrustedProvider && q.cfg.TrustedProvider != "":
		return q.cfg.TrustedTimeout
	case opts.Timeout > 0:
		return opts.Timeout
	default:
		return q.cfg.DefaultTimeout
	}
}

// requestBody asks for set answers on every qnode that has several ids or
// none. Empty optional fields are dropped by omitempty.
func (q *OneHopQuerier) requestBody(qg *models.QueryGraph, provider string) *models.Query {
	sent := qg.Clone()
	for key, n := range sent.Nodes {
		if len(n.IDs) != 1 {
			n.IsSet = true
			sent.Nodes[key] = n
		}
	}

	body := &models.Query{Message: models.Message{QueryGraph: sent}}
	if provider == q.cfg.TrustedProvider && q.cfg.TrustedProvider != "" {
		body.Submitter = q.cfg.Submitter
		body.ReturnMinimalMetadata = true
	}

	return body
}

// load builds the role-organized fragment from a provider answer.
func (q *OneHopQuerier) load(ctx context.Context, resp sentResponse, provider string, multi map[string]bool, opts QueryOptions) *kg.Graph {
	frag := kg.NewGraph()
	log := q.log.WithField("provider", provider)

	msg := resp.Message
	if msg == nil {
		log.Warn("querier.load: response has no message")
		return frag
	}

	if len(msg.Results) == 0 || msg.KnowledgeGraph == nil {
		log.Debug("querier.load: no results returned")
		return frag
	}

	if slices.Contains(q.cfg.WhitespaceProviders, provider) {
		trimCuries(msg)
	}

	nodeRoles, edgeRoles, queryIDs := bindingMaps(msg.Results, multi)

	if provider != q.cfg.TrustedProvider && opts.SynonymHandling != models.SynonymAddAll {
		q.canonicalizeQueryIDs(ctx, queryIDs)
	}

	var unboundEdges int

	for _, key := range sortedStrings(msg.KnowledgeGraph.Edges) {
		e := msg.KnowledgeGraph.Edges[key]
		roles, ok := edgeRoles[key]
		if !ok {
			unboundEdges++
			continue
		}

		e.Attributes = normalizeEdgeAttributes(e.Attributes, provider)
		ourKey := fmt.Sprintf("%s:%s-%s-%s", provider, e.Subject, e.Predicate, e.Object)

		for _, role := range sortedSet(roles) {
			frag.AddEdge(ourKey, e, role)
		}
	}

	var unboundNodes int

	for _, key := range sortedStrings(msg.KnowledgeGraph.Nodes) {
		n := msg.KnowledgeGraph.Nodes[key]
		n.Attributes = fillAttributeTypes(n.Attributes, provider)

		roles, ok := nodeRoles[key]
		if !ok {
			unboundNodes++
			continue
		}

		n.QueryIDs = sortedSet(queryIDs[key])

		for _, role := range sortedSet(roles) {
			frag.AddNode(key, n, role)
		}
	}

	if unboundEdges > 0 || unboundNodes > 0 {
		log.WithFields(logrus.Fields{
			"unbound_edges": unboundEdges,
			"unbound_nodes": unboundNodes,
		}).Warn("querier.load: entities without query graph bindings ignored")
	}

	q.addSubclassEdges(ctx, frag, provider, multi)

	return frag
}

// bindingMaps records which roles each returned entity fulfills and, for
// roles queried with several ids, which input id each node was matched to.
func bindingMaps(results []models.Result, multi map[string]bool) (nodes, edges, queryIDs map[string]map[string]bool) {
	nodes = map[string]map[string]bool{}
	edges = map[string]map[string]bool{}
	queryIDs = map[string]map[string]bool{}

	add := func(m map[string]map[string]bool, k, v string) {
		if m[k] == nil {
			m[k] = map[string]bool{}
		}

		m[k][v] = true
	}

	for _, r := range results {
		for role, bindings := range r.NodeBindings {
			for _, b := range bindings {
				add(nodes, b.ID, role)

				if b.QueryID != "" && multi[role] && b.QueryID != b.ID {
					add(queryIDs, b.ID, b.QueryID)
				}
			}
		}

		for role, bindings := range r.EdgeBindings {
			for _, b := range bindings {
				add(edges, b.ID, role)
			}
		}
	}

	return nodes, edges, queryIDs
}

// canonicalizeQueryIDs maps echoed query ids back to their preferred curie.
// Lookup failures leave the ids as returned.
func (q *OneHopQuerier) canonicalizeQueryIDs(ctx context.Context, queryIDs map[string]map[string]bool) {
	raw := map[string]bool{}
	for _, ids := range queryIDs {
		for id := range ids {
			raw[id] = true
		}
	}

	if len(raw) == 0 {
		return
	}

	info, err := q.canon.CanonicalCuries(ctx, sortedSet(raw))
	if err != nil {
		q.log.WithError(err).Warn("querier.canonicalize: keeping query ids as returned")
		return
	}

	for kgID, ids := range queryIDs {
		mapped := map[string]bool{}
		for id := range ids {
			if i, ok := info[id]; ok && i.PreferredCurie != "" {
				id = i.PreferredCurie
			}

			mapped[id] = true
		}

		queryIDs[kgID] = mapped
	}
}

// addSubclassEdges links every node matched under a parent query id to that
// parent with a subclass_of edge, adding a stub parent node when needed.
func (q *OneHopQuerier) addSubclassEdges(ctx context.Context, frag *kg.Graph, provider string, multi map[string]bool) {
	var added int

	for _, role := range sortedSet(multi) {
		nodes := frag.Nodes[role]

		missing := map[string]bool{}
		for _, n := range nodes {
			for _, parent := range n.QueryIDs {
				if _, ok := nodes[parent]; !ok {
					missing[parent] = true
				}
			}
		}

		var parents map[string]canon.Info
		if len(missing) > 0 {
			var err error

			parents, err = q.canon.CanonicalCuries(ctx, sortedSet(missing))
			if err != nil {
				q.log.WithError(err).Warn("querier.subclass: parent lookup failed")
			}
		}

		subclassRole := fmt.Sprintf("subclass:%s--%s", role, role)

		for _, child := range sortedStrings(nodes) {
			for _, parent := range nodes[child].QueryIDs {
				if parent == "" || parent == child {
					continue
				}

				if _, ok := frag.Nodes[role][parent]; !ok {
					stub := models.Node{}
					if info, ok := parents[parent]; ok {
						stub.Name = info.PreferredName
						if info.PreferredCategory != "" {
							stub.Categories = []string{info.PreferredCategory}
						}
					}

					frag.AddNode(parent, stub, role)
				}

				key := fmt.Sprintf("%s:%s--%s--%s", provider, child, SubclassPredicate, parent)
				frag.AddEdge(key, models.Edge{Subject: child, Object: parent, Predicate: SubclassPredicate}, subclassRole)
				added++
			}
		}
	}

	if added > 0 {
		q.log.WithFields(logrus.Fields{"provider": provider, "edges": added}).Debug("querier.subclass: added subclass_of edges")
	}
}

func fillAttributeTypes(attrs []models.Attribute, provider string) []models.Attribute {
	for i := range attrs {
		if attrs[i].AttributeTypeID == "" {
			attrs[i].AttributeTypeID = fmt.Sprintf("not provided (this attribute came from %s)", provider)
		}
	}

	return attrs
}

// normalizeEdgeAttributes fills missing attribute types, credits the
// provider if no attribute names it, and always marks the aggregator.
func normalizeEdgeAttributes(attrs []models.Attribute, provider string) []models.Attribute {
	out := fillAttributeTypes(append([]models.Attribute(nil), attrs...), provider)

	credited := false
	for _, a := range out {
		if namesProvider(a.Value, provider) {
			credited = true
			break
		}
	}

	if !credited {
		out = append(out, models.Attribute{
			AttributeTypeID: KnowledgeSourceAttr,
			Value:           provider,
			ValueTypeID:     "biolink:InformationResource",
			AttributeSource: AggregatorInfores,
		})
	}

	return append(out, models.Attribute{
		AttributeTypeID: AggregatorSourceAttr,
		Value:           AggregatorInfores,
		ValueTypeID:     "biolink:InformationResource",
		AttributeSource: AggregatorInfores,
	})
}

func namesProvider(v any, provider string) bool {
	switch val := v.(type) {
	case string:
		return val == provider
	case []string:
		return slices.Contains(val, provider)
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok && s == provider {
				return true
			}
		}
	}

	return false
}

// trimCuries strips surrounding whitespace from every curie in msg.
func trimCuries(msg *models.Message) {
	kgraph := msg.KnowledgeGraph

	nodes := make(map[string]models.Node, len(kgraph.Nodes))
	for key, n := range kgraph.Nodes {
		nodes[strings.TrimSpace(key)] = n
	}

	kgraph.Nodes = nodes

	for key, e := range kgraph.Edges {
		e.Subject = strings.TrimSpace(e.Subject)
		e.Object = strings.TrimSpace(e.Object)
		kgraph.Edges[key] = e
	}

	for _, r := range msg.Results {
		for role, bindings := range r.NodeBindings {
			for i := range bindings {
				bindings[i].ID = strings.TrimSpace(bindings[i].ID)
				bindings[i].QueryID = strings.TrimSpace(bindings[i].QueryID)
			}

			r.NodeBindings[role] = bindings
		}
	}
}

func sortedStrings[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func sortedSet(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}

	return sortedStrings(m)
}
