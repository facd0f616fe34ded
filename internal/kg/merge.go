package kg

// MergeStats reports what one merge changed.
type MergeStats struct {
	DeadEndNodes int
	DeadEndEdges int
	NodesAdded   int
	EdgesAdded   int
}

// EdgeContext describes the hop that produced a fragment.
type EdgeContext struct {
	QEdgeKey string
	// AnswerQNode is the endpoint queried with the ids an earlier hop found
	// for it. Empty when no ids were carried forward.
	AnswerQNode string
}

// Merge folds frag into cum. When edge names an answer qnode, entities the
// new fragment no longer returns under that role are dead ends and are
// removed with their edges first. Admission stops at the first binding
// error; entities admitted before it stay in cum.
func Merge(cum *Cumulative, frag *Graph, edge *EdgeContext) (MergeStats, error) {
	var stats MergeStats
	if frag == nil {
		return stats, nil
	}

	if edge != nil && edge.AnswerQNode != "" && cum.HasRole(edge.AnswerQNode) && frag.NodeCount() > 0 {
		answered := frag.Nodes[edge.AnswerQNode]
		for _, key := range cum.NodeKeysFor(edge.AnswerQNode) {
			if _, ok := answered[key]; ok {
				continue
			}

			stats.DeadEndEdges += cum.RemoveNode(key)
			stats.DeadEndNodes++
		}
	}

	for _, role := range sortedKeys(frag.Nodes) {
		nodes := frag.Nodes[role]
		for _, key := range sortedKeys(nodes) {
			_, existed := cum.nodeRole[key]
			if err := cum.AdmitNode(key, nodes[key], role); err != nil {
				return stats, err
			}

			if !existed {
				stats.NodesAdded++
			}
		}
	}

	for _, role := range sortedKeys(frag.Edges) {
		edges := frag.Edges[role]
		for _, key := range sortedKeys(edges) {
			_, existed := cum.edgeRole[key]
			if err := cum.AdmitEdge(key, edges[key], role); err != nil {
				return stats, err
			}

			if !existed {
				stats.EdgesAdded++
			}
		}
	}

	return stats, nil
}
