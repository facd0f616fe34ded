package models_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/persistorai/kpfed/internal/models"
)

func ptr[T any](v T) *T { return &v }

func assertErrorContains(t *testing.T, err error, want string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}

	if !strings.Contains(err.Error(), want) {
		t.Errorf("expected error containing %q, got %q", want, err.Error())
	}
}

func chainQG() *models.QueryGraph {
	return &models.QueryGraph{
		Nodes: map[string]models.QNode{
			"n0": {IDs: []string{"CHEBI:1"}},
			"n1": {Categories: []string{"biolink:Gene"}},
		},
		Edges: map[string]models.QEdge{
			"e0": {Subject: "n0", Object: "n1"},
		},
	}
}

func TestExpandRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     models.ExpandRequest
		wantErr string
	}{
		{name: "valid minimal", req: models.ExpandRequest{QueryGraph: chainQG()}},
		{name: "missing query graph", req: models.ExpandRequest{}, wantErr: "QueryGraph is required"},
		{name: "bad synonym handling", req: models.ExpandRequest{QueryGraph: chainQG(), SynonymHandling: "merge"}, wantErr: "SynonymHandling must be one of"},
		{name: "bad mode", req: models.ExpandRequest{QueryGraph: chainQG(), Mode: "parallel"}, wantErr: "Mode must be one of"},
		{name: "bad provider", req: models.ExpandRequest{QueryGraph: chainQG(), Provider: "kg2"}, wantErr: "Provider must start with"},
		{name: "negative timeout", req: models.ExpandRequest{QueryGraph: chainQG(), TimeoutSeconds: -1}, wantErr: "TimeoutSeconds is out of range"},
		{name: "timeout at cap", req: models.ExpandRequest{QueryGraph: chainQG(), TimeoutSeconds: models.MaxTimeoutSeconds}},
		{name: "timeout over cap", req: models.ExpandRequest{QueryGraph: chainQG(), TimeoutSeconds: models.MaxTimeoutSeconds + 1}, wantErr: "TimeoutSeconds is out of range"},
		{name: "empty edge key", req: models.ExpandRequest{QueryGraph: chainQG(), EdgeKeys: []string{""}}, wantErr: "is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}

				return
			}

			assertErrorContains(t, err, tt.wantErr)

			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestExpandRequest_ValidateDefaults(t *testing.T) {
	req := models.ExpandRequest{QueryGraph: chainQG()}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if req.UseSynonyms == nil || !*req.UseSynonyms {
		t.Error("expected use_synonyms to default to true")
	}

	if req.SynonymHandling != models.SynonymMapBack {
		t.Errorf("synonym handling = %q, want %q", req.SynonymHandling, models.SynonymMapBack)
	}

	if req.Mode != models.ModeConcurrent {
		t.Errorf("mode = %q, want %q", req.Mode, models.ModeConcurrent)
	}

	explicit := models.ExpandRequest{QueryGraph: chainQG(), UseSynonyms: ptr(false), Mode: models.ModeSerial}
	if err := explicit.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if *explicit.UseSynonyms || explicit.Mode != models.ModeSerial {
		t.Error("explicit options must not be overwritten")
	}
}

func TestQueryGraph_Validate(t *testing.T) {
	qg := chainQG()
	qg.Edges["e1"] = models.QEdge{Subject: "n1", Object: "n9"}

	err := qg.Validate()
	if !errors.Is(err, models.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}

	assertErrorContains(t, err, `unknown object "n9"`)

	if err := models.NewQueryGraph().Validate(); !errors.Is(err, models.ErrInvalidQuery) {
		t.Errorf("empty graph: expected ErrInvalidQuery, got %v", err)
	}
}

func TestQueryGraph_CloneIsDeep(t *testing.T) {
	qg := chainQG()
	cp := qg.Clone()

	n := cp.Nodes["n0"]
	n.IDs[0] = "CHEBI:2"
	cp.Nodes["n0"] = n

	if qg.Nodes["n0"].IDs[0] != "CHEBI:1" {
		t.Errorf("clone shares id slice with original: %v", qg.Nodes["n0"].IDs)
	}
}

func TestQueryGraph_OrphanNodeKeys(t *testing.T) {
	qg := chainQG()
	qg.Nodes["n2"] = models.QNode{}
	qg.Nodes["a"] = models.QNode{}

	got := qg.OrphanNodeKeys()
	if len(got) != 2 || got[0] != "a" || got[1] != "n2" {
		t.Errorf("OrphanNodeKeys = %v, want [a n2]", got)
	}

	qg.Nodes["n2"] = models.QNode{IDs: []string{"A:1", "A:2", "A:3"}}
	if qg.MaxIDCount() != 3 {
		t.Errorf("MaxIDCount = %d, want 3", qg.MaxIDCount())
	}
}

func TestErrUnknownKey(t *testing.T) {
	err := models.ErrUnknownKey("edge", "e7")
	if !errors.Is(err, models.ErrUnknownValue) {
		t.Fatalf("expected ErrUnknownValue, got %v", err)
	}

	assertErrorContains(t, err, `edge "e7"`)
}
