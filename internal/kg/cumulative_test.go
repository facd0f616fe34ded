package kg

import (
	"errors"
	"testing"

	"github.com/persistorai/kpfed/internal/models"
)

func TestFromKnowledgeGraph_RoundTrip(t *testing.T) {
	cum := NewCumulative()
	if _, err := Merge(cum, chainFragment(), nil); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	out := cum.KnowledgeGraph()
	if got := out.Nodes["G1"].QNodeKeys; len(got) != 1 || got[0] != "n1" {
		t.Errorf("G1 qnode_keys = %v, want [n1]", got)
	}

	seeded, err := FromKnowledgeGraph(out)
	if err != nil {
		t.Fatalf("FromKnowledgeGraph: %v", err)
	}

	if seeded.NodeCount() != 3 || seeded.EdgeCount() != 2 {
		t.Errorf("seeded graph has %d nodes and %d edges, want 3 and 2", seeded.NodeCount(), seeded.EdgeCount())
	}

	if role, _ := seeded.EdgeRole("kp:C1-G2"); role != "e0" {
		t.Errorf("edge role = %q, want e0", role)
	}
}

func TestFromKnowledgeGraph_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   *models.KnowledgeGraph
		want error
	}{
		{
			name: "node without role",
			in:   &models.KnowledgeGraph{Nodes: map[string]models.Node{"X": {}}},
			want: models.ErrMissingProperty,
		},
		{
			name: "node with two roles",
			in:   &models.KnowledgeGraph{Nodes: map[string]models.Node{"X": {QNodeKeys: []string{"n0", "n1"}}}},
			want: models.ErrMultipleQGIDs,
		},
		{
			name: "edge without role",
			in:   &models.KnowledgeGraph{Edges: map[string]models.Edge{"E": {Subject: "a", Object: "b"}}},
			want: models.ErrMissingProperty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromKnowledgeGraph(tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCumulative_RemoveNodeDropsIncidentEdges(t *testing.T) {
	cum := NewCumulative()
	if _, err := Merge(cum, chainFragment(), nil); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if removed := cum.RemoveNode("C1"); removed != 2 {
		t.Errorf("removed %d edges, want 2", removed)
	}

	if cum.EdgeCount() != 0 {
		t.Errorf("edges left: %d", cum.EdgeCount())
	}

	if cum.HasRole("n0") {
		t.Error("role n0 should be empty")
	}

	if cum.RemoveNode("missing") != 0 {
		t.Error("removing an unknown node should be a no-op")
	}
}

func TestGraph_AbsorbKeepsFirst(t *testing.T) {
	a := NewGraph()
	a.AddNode("X", models.Node{Name: "first"}, "n0")

	b := NewGraph()
	b.AddNode("X", models.Node{Name: "second"}, "n0")
	b.AddNode("Y", models.Node{Name: "y"}, "n0")
	b.AddEdge("X-Y", models.Edge{Subject: "X", Object: "Y"}, "e0")

	a.Absorb(b)

	if a.Nodes["n0"]["X"].Name != "first" {
		t.Errorf("Absorb replaced X: %q", a.Nodes["n0"]["X"].Name)
	}

	if a.NodeCount() != 2 || a.EdgeCount() != 1 || a.EdgeCountFor("e0") != 1 {
		t.Errorf("unexpected counts: %d nodes, %d edges", a.NodeCount(), a.EdgeCount())
	}
}
