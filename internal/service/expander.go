package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/kpfed/internal/domain"
	"github.com/persistorai/kpfed/internal/kg"
	"github.com/persistorai/kpfed/internal/metrics"
	"github.com/persistorai/kpfed/internal/models"
	"github.com/persistorai/kpfed/internal/planner"
)

var tracer = otel.Tracer("kpfed.expand")

// OneHopAnswerer queries one provider for one hop or one node.
type OneHopAnswerer interface {
	AnswerOneHop(ctx context.Context, qg *models.QueryGraph, provider string, opts QueryOptions) (*kg.Graph, error)
	AnswerSingleNode(ctx context.Context, qg *models.QueryGraph, provider string, opts QueryOptions) (*kg.Graph, error)
}

// Compile-time check: *Expander must satisfy domain.Expander.
var _ domain.Expander = (*Expander)(nil)

// Expander runs expansions: it plans the requested part of a query graph,
// sends each hop to the chosen providers, and folds their answers into one
// cumulative graph.
type Expander struct {
	querier  OneHopAnswerer
	selector domain.ProviderSelector
	sink     TraceSink
	log      *logrus.Logger
	newID    func() string
}

// NewExpander creates an Expander. sink may be nil.
func NewExpander(querier OneHopAnswerer, selector domain.ProviderSelector, sink TraceSink, log *logrus.Logger) *Expander {
	return &Expander{querier: querier, selector: selector, sink: sink, log: log, newID: uuid.NewString}
}

// Expand runs one expansion. On a binding error the partial response is
// returned together with the error; everything merged before it is kept.
func (x *Expander) Expand(ctx context.Context, req *models.ExpandRequest) (*models.ExpandResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	edgeKeys, nodeKeys, err := targets(req)
	if err != nil {
		return nil, err
	}

	cum, err := kg.FromKnowledgeGraph(req.KnowledgeGraph)
	if err != nil {
		return nil, fmt.Errorf("seeding knowledge graph: %w", err)
	}

	id := x.newID()

	ctx, span := tracer.Start(ctx, "expand.Expand",
		trace.WithAttributes(
			attribute.String("expansion.id", id),
			attribute.Int("expansion.edges", len(edgeKeys)),
			attribute.Int("expansion.nodes", len(nodeKeys)),
			attribute.String("expansion.provider", req.Provider),
			attribute.String("expansion.mode", req.Mode),
		),
	)
	defer span.End()

	run := &expansion{
		x:     x,
		req:   req,
		cum:   cum,
		trace: NewTrace(id, x.sink),
		log:   x.log.WithField("expansion_id", id),
	}

	resp := &models.ExpandResponse{ExpansionID: id}

	err = run.execute(ctx, edgeKeys, nodeKeys, resp)

	resp.KnowledgeGraph = cum.KnowledgeGraph()
	resp.Trace = run.trace.Entries()
	resp.NodeCount = cum.NodeCount()
	resp.EdgeCount = cum.EdgeCount()

	metrics.ExpansionNodes.Observe(float64(resp.NodeCount))
	metrics.ExpansionEdges.Observe(float64(resp.EdgeCount))

	summary := FinishedEvent{NodeCount: resp.NodeCount, EdgeCount: resp.EdgeCount, StoppedEarly: resp.StoppedEarly}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		run.log.WithError(err).Warn("expand.failed")

		summary.Error = err.Error()
	} else {
		span.SetStatus(codes.Ok, "")
		run.log.WithFields(logrus.Fields{
			"nodes":         resp.NodeCount,
			"edges":         resp.EdgeCount,
			"stopped_early": resp.StoppedEarly,
		}).Info("expand.done")
	}

	if x.sink != nil {
		x.sink.Finish(id, summary)
	}

	return resp, err
}

// targets resolves which edges and nodes to expand. With neither given, all
// edges and every node no edge touches are expanded.
func targets(req *models.ExpandRequest) (edges, nodes []string, err error) {
	qg := req.QueryGraph

	edges, nodes = req.EdgeKeys, req.NodeKeys
	if len(edges) == 0 && len(nodes) == 0 {
		return qg.EdgeKeys(), qg.OrphanNodeKeys(), nil
	}

	for _, k := range edges {
		if _, ok := qg.Edges[k]; !ok {
			return nil, nil, models.ErrUnknownKey("edge", k)
		}
	}

	for _, k := range nodes {
		if _, ok := qg.Nodes[k]; !ok {
			return nil, nil, models.ErrUnknownKey("node", k)
		}
	}

	return edges, nodes, nil
}

// expansion is the state of one Expand call.
type expansion struct {
	x     *Expander
	req   *models.ExpandRequest
	cum   *kg.Cumulative
	trace *Trace
	log   *logrus.Entry
}

func (e *expansion) execute(ctx context.Context, edgeKeys, nodeKeys []string, resp *models.ExpandResponse) error {
	if len(edgeKeys) > 0 {
		stopped, err := e.expandEdges(ctx, edgeKeys, resp)
		if err != nil {
			return err
		}

		if stopped {
			resp.StoppedEarly = true
			return nil
		}
	}

	if len(nodeKeys) > 0 {
		return e.expandNodes(ctx, nodeKeys)
	}

	return nil
}

func (e *expansion) options() QueryOptions {
	return QueryOptions{
		UserSpecifiedProvider: e.req.Provider != "",
		EnforceDirectionality: e.req.EnforceDirectionality,
		Timeout:               e.req.Timeout(),
		UseSynonyms:           e.req.UseSynonyms == nil || *e.req.UseSynonyms,
		SynonymHandling:       e.req.SynonymHandling,
		Trace:                 e.trace,
	}
}

// subgraph collects the target edges and their endpoints, with ids found
// earlier carried forward so the planner anchors on them.
func (e *expansion) subgraph(edgeKeys []string) *models.QueryGraph {
	full := e.req.QueryGraph
	sub := models.NewQueryGraph()

	for _, k := range edgeKeys {
		qe := full.Edges[k]
		sub.Edges[k] = qe
		sub.Nodes[qe.Subject] = full.Nodes[qe.Subject]
		sub.Nodes[qe.Object] = full.Nodes[qe.Object]
	}

	sub = sub.Clone()

	for _, k := range edgeKeys {
		e.carryForward(sub, sub.Edges[k])
	}

	return sub
}

// hopGraph builds the one-hop query graph for edgeKey. It also returns the
// qnode whose ids were carried forward from the cumulative graph, if any.
func (e *expansion) hopGraph(edgeKey string) (*models.QueryGraph, string) {
	full := e.req.QueryGraph
	qe := full.Edges[edgeKey]

	hop := models.NewQueryGraph()
	hop.Edges[edgeKey] = qe
	hop.Nodes[qe.Subject] = full.Nodes[qe.Subject]
	hop.Nodes[qe.Object] = full.Nodes[qe.Object]
	hop = hop.Clone()

	return hop, e.carryForward(hop, qe)
}

// carryForward gives an endpoint of qe without ids of its own the ids already
// found for its role, unless both endpoints are fulfilled, which means the
// edge was expanded before. It returns the filled qnode, or "".
func (e *expansion) carryForward(qg *models.QueryGraph, qe models.QEdge) string {
	if e.cum.HasRole(qe.Subject) && e.cum.HasRole(qe.Object) {
		return ""
	}

	var filled string

	for _, key := range []string{qe.Subject, qe.Object} {
		n := qg.Nodes[key]
		if len(n.IDs) > 0 || !e.cum.HasRole(key) {
			continue
		}

		n.IDs = e.cum.NodeKeysFor(key)
		qg.Nodes[key] = n
		filled = key
	}

	return filled
}

func (e *expansion) providers(ctx context.Context, qg *models.QueryGraph) ([]string, error) {
	if e.req.Provider != "" {
		return []string{e.req.Provider}, nil
	}

	return e.x.selector.ProvidersFor(ctx, qg, e.req.EnforceDirectionality)
}

func (e *expansion) expandEdges(ctx context.Context, edgeKeys []string, resp *models.ExpandResponse) (stopped bool, err error) {
	plan, err := planner.Build(e.subgraph(edgeKeys))
	if err != nil {
		return false, err
	}

	e.log.WithField("order", plan.Edges).Debug("expand.plan")

	opts := e.options()

	for i, edgeKey := range plan.Edges {
		hop, answer := e.hopGraph(edgeKey)

		providers, err := e.providers(ctx, hop)
		if err != nil {
			return false, err
		}

		if len(providers) == 0 {
			e.trace.Record(models.TraceEntry{QEdgeKey: edgeKey, State: models.TraceSkipped, Message: "No providers accept this query edge"})
		}

		jobs := make([]job, len(providers))
		for j, p := range providers {
			jobs[j] = func(ctx context.Context) (*kg.Graph, error) {
				return e.x.querier.AnswerOneHop(ctx, hop, p, opts)
			}
		}

		frags, err := e.run(ctx, jobs)
		if err != nil {
			return false, err
		}

		combined := kg.NewGraph()
		for _, f := range frags {
			combined.Absorb(f)
		}

		stats, err := kg.Merge(e.cum, combined, &kg.EdgeContext{QEdgeKey: edgeKey, AnswerQNode: answer})

		e.log.WithFields(logrus.Fields{
			"qedge":          edgeKey,
			"providers":      len(providers),
			"edges_returned": combined.EdgeCountFor(edgeKey),
			"nodes_added":    stats.NodesAdded,
			"edges_added":    stats.EdgesAdded,
			"dead_end_nodes": stats.DeadEndNodes,
		}).Info("expand.edge")

		if err != nil {
			return false, err
		}

		resp.PrunedNodes += stats.DeadEndNodes
		resp.PrunedEdges += stats.DeadEndEdges

		if combined.EdgeCountFor(edgeKey) == 0 && !e.req.ContinueIfNoResults {
			for _, rest := range plan.Edges[i+1:] {
				e.trace.Record(models.TraceEntry{
					QEdgeKey: rest,
					Provider: e.req.Provider,
					State:    models.TraceSkipped,
					Message:  fmt.Sprintf("Skipped because %s returned no results", edgeKey),
				})
			}

			e.log.WithField("qedge", edgeKey).Info("expand.stopped: no results")

			return true, nil
		}
	}

	nodes, edges := kg.PruneDeadEnds(e.cum, plan)
	resp.PrunedNodes += nodes
	resp.PrunedEdges += edges

	if nodes > 0 {
		e.log.WithFields(logrus.Fields{"nodes": nodes, "edges": edges}).Debug("expand.prune")
	}

	return false, nil
}

// expandNodes answers each orphan node independently and merges the
// answers in node order.
func (e *expansion) expandNodes(ctx context.Context, nodeKeys []string) error {
	opts := e.options()

	var jobs []job

	for _, key := range nodeKeys {
		single := models.NewQueryGraph()
		single.Nodes[key] = e.req.QueryGraph.Nodes[key]
		single = single.Clone()

		providers, err := e.providers(ctx, single)
		if err != nil {
			return err
		}

		if len(providers) == 0 {
			e.trace.Record(models.TraceEntry{QNodeKey: key, State: models.TraceSkipped, Message: "No providers accept this query node"})
		}

		for _, p := range providers {
			jobs = append(jobs, func(ctx context.Context) (*kg.Graph, error) {
				return e.x.querier.AnswerSingleNode(ctx, single, p, opts)
			})
		}
	}

	frags, err := e.run(ctx, jobs)
	if err != nil {
		return err
	}

	for _, f := range frags {
		stats, err := kg.Merge(e.cum, f, nil)
		if err != nil {
			return err
		}

		e.log.WithField("nodes_added", stats.NodesAdded).Debug("expand.node")
	}

	return nil
}

type job func(ctx context.Context) (*kg.Graph, error)

type jobResult struct {
	idx  int
	frag *kg.Graph
}

// run executes jobs serially or concurrently and returns their fragments in
// job order. Provider failures never surface here; only request errors do,
// and the first one cancels the rest.
func (e *expansion) run(ctx context.Context, jobs []job) ([]*kg.Graph, error) {
	out := make([]*kg.Graph, len(jobs))

	if e.req.Mode == models.ModeSerial {
		for i, j := range jobs {
			frag, err := j(ctx)
			if err != nil {
				return nil, err
			}

			out[i] = frag
		}

		return out, nil
	}

	results := make(chan jobResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		g.Go(func() error {
			frag, err := j(gctx)
			if err != nil {
				return err
			}

			results <- jobResult{idx: i, frag: frag}

			return nil
		})
	}

	err := g.Wait()
	close(results)

	if err != nil {
		return nil, err
	}

	for r := range results {
		out[r.idx] = r.frag
	}

	return out, nil
}
