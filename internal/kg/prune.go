package kg

import "github.com/persistorai/kpfed/internal/planner"

// PruneDeadEnds removes intermediate nodes of a linear chain that have no edge
// continuing to the right. Layers are walked from the second-to-last back to
// the first, since removing a layer can strand nodes in the layer before it.
// An edge counts as left only when it is bound to the node's left role; all
// others, subclass edges included, count as right. Non-linear plans and chains
// of fewer than three nodes are left untouched.
func PruneDeadEnds(cum *Cumulative, plan *planner.Plan) (nodes, edges int) {
	if plan == nil || !plan.Linear || len(plan.Nodes) <= 2 {
		return 0, 0
	}

	for i := len(plan.Nodes) - 2; i >= 0; i-- {
		role := plan.Nodes[i]
		left := plan.Adjacency[role].Left

		for _, key := range cum.NodeKeysFor(role) {
			hasRight := false
			for _, edgeKey := range cum.IncidentEdges(key) {
				if r, _ := cum.EdgeRole(edgeKey); r != left {
					hasRight = true
					break
				}
			}

			if !hasRight {
				edges += cum.RemoveNode(key)
				nodes++
			}
		}
	}

	return nodes, edges
}
