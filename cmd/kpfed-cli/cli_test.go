package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/persistorai/kpfed/client"
)

// resetFlags restores global flag state after each test.
func resetFlags(t *testing.T) {
	t.Helper()
	orig := struct{ url, fmt string }{flagURL, flagFmt}
	t.Cleanup(func() {
		flagURL = orig.url
		flagFmt = orig.fmt
	})
}

// run executes a fresh command tree with HOME pointed at a temp dir and
// returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KPFED_URL", "")

	root := newRootCmd()
	var out strings.Builder
	root.SetOut(&out)
	root.SetErr(&strings.Builder{})
	root.SetArgs(args)
	_, err := root.ExecuteC()
	return out.String(), err
}

func jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func newServer(t *testing.T, routes map[string]http.HandlerFunc) string {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.HandleFunc(pattern, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const bareQG = `{"nodes":{"n0":{"ids":["MONDO:1"]},"n1":{}},"edges":{"e0":{"subject":"n0","object":"n1"}}}`

func TestResolveConfig(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		env     string
		profile string
		want    string
	}{
		{"default", defaultURL, "", "", defaultURL},
		{"env overrides default", defaultURL, "http://env:1", "", "http://env:1"},
		{"config file", defaultURL, "", "http://file:2", "http://file:2"},
		{"env beats config file", defaultURL, "http://env:1", "http://file:2", "http://env:1"},
		{"flag beats everything", "http://flag:3", "http://env:1", "http://file:2", "http://flag:3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			home := t.TempDir()
			t.Setenv("HOME", home)
			t.Setenv("KPFED_URL", tt.env)
			if tt.profile != "" {
				dir := filepath.Join(home, ".kpfed")
				if err := os.MkdirAll(dir, 0o700); err != nil {
					t.Fatal(err)
				}
				body := "active_profile: default\nprofiles:\n  default:\n    url: " + tt.profile + "\n"
				if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			flagURL = tt.flag
			resolveConfig()
			if flagURL != tt.want {
				t.Errorf("flagURL = %q, want %q", flagURL, tt.want)
			}
		})
	}
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	resetFlags(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KPFED_URL", "")

	if _, err := writeConfig("http://saved:9"); err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	flagURL = defaultURL
	resolveConfig()
	if flagURL != "http://saved:9" {
		t.Errorf("flagURL = %q after writeConfig", flagURL)
	}
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"expand needs a file", []string{"expand"}},
		{"expand takes one file", []string{"expand", "a", "b"}},
		{"trace needs an id", []string{"trace"}},
		{"providers list takes no args", []string{"providers", "list", "x"}},
		{"synonyms import needs a file", []string{"synonyms", "import"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("expected argument error")
			}
		})
	}
}

func TestBuildExpandRequest(t *testing.T) {
	t.Run("bare query graph", func(t *testing.T) {
		req, err := buildExpandRequest([]byte(bareQG), expandFlags{})
		if err != nil {
			t.Fatal(err)
		}
		if len(req.QueryGraph.Nodes) != 2 || req.QueryGraph.Edges["e0"].Subject != "n0" {
			t.Errorf("got %+v", req.QueryGraph)
		}
	})

	t.Run("full request with overrides", func(t *testing.T) {
		raw := `{"query_graph":` + bareQG + `,"mode":"serial","provider":"infores:a"}`
		req, err := buildExpandRequest([]byte(raw), expandFlags{
			mode: "concurrent", edges: []string{"e0"}, noSynonyms: true, timeout: 1500e6,
		})
		if err != nil {
			t.Fatal(err)
		}
		if req.Mode != "concurrent" || req.Provider != "infores:a" {
			t.Errorf("mode/provider = %q/%q", req.Mode, req.Provider)
		}
		if req.UseSynonyms == nil || *req.UseSynonyms {
			t.Error("expected use_synonyms=false")
		}
		if req.TimeoutSeconds != 2 {
			t.Errorf("timeout = %d, want 2", req.TimeoutSeconds)
		}
		if len(req.EdgeKeys) != 1 {
			t.Errorf("edge keys = %v", req.EdgeKeys)
		}
	})

	t.Run("rejects empty graph", func(t *testing.T) {
		if _, err := buildExpandRequest([]byte(`{"nodes":{}}`), expandFlags{}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("rejects non-json", func(t *testing.T) {
		if _, err := buildExpandRequest([]byte(`nodes:`), expandFlags{}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestExpandCommand(t *testing.T) {
	var got client.ExpandRequest
	url := newServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/expand": func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got) //nolint:errcheck
			jsonResponse(w, 200, client.ExpandResponse{
				ExpansionID: "exp-7",
				KnowledgeGraph: &client.KnowledgeGraph{Nodes: map[string]client.Node{
					"MONDO:1":    {QNodeKeys: []string{"n0"}},
					"NCBIGene:7": {QNodeKeys: []string{"n1"}},
				}},
				NodeCount: 2,
				Trace:     []client.TraceEntry{{QEdgeKey: "e0", Provider: "infores:a", State: "Done", Message: "Returned 1 edges in 0.1 seconds"}},
			})
		},
	})
	path := writeFile(t, "qg.json", bareQG)

	out, err := run(t, "--url", url, "--format", "quiet", "expand", path, "--mode", "serial")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if strings.TrimSpace(out) != "exp-7" {
		t.Errorf("quiet output = %q", out)
	}
	if got.Mode != "serial" {
		t.Errorf("server saw mode %q", got.Mode)
	}

	out, err = run(t, "--url", url, "--format", "table", "expand", path)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	for _, want := range []string{"Expansion exp-7: 2 nodes", "QNODE", "n1", "infores:a", "Done"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestExpandCommand_ConflictPrintsPartial(t *testing.T) {
	url := newServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/expand": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 409, map[string]any{
				"code": "inconsistent_bindings", "message": "conflict",
				"partial": client.ExpandResponse{ExpansionID: "exp-partial"},
			})
		},
	})
	path := writeFile(t, "qg.json", bareQG)

	out, err := run(t, "--url", url, "--format", "quiet", "expand", path)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.TrimSpace(out) != "exp-partial" {
		t.Errorf("output = %q, want partial expansion id", out)
	}
}

func TestProvidersCommands(t *testing.T) {
	url := newServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/providers": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, client.ProvidersResponse{Providers: []client.ProviderSummary{
				{Infores: "infores:a", URL: "http://a", PredicateCount: 3, Categories: []string{"biolink:Gene"}},
				{Infores: "infores:b", URL: "http://b"},
			}})
		},
		"POST /api/v1/providers/refresh": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 409, map[string]string{"code": "refresh_in_progress", "message": "busy"})
		},
	})

	out, err := run(t, "--url", url, "--format", "quiet", "providers", "list")
	if err != nil {
		t.Fatalf("providers list: %v", err)
	}
	if out != "infores:a\ninfores:b\n" {
		t.Errorf("output = %q", out)
	}

	out, err = run(t, "--url", url, "--format", "table", "providers", "list")
	if err != nil {
		t.Fatalf("providers list: %v", err)
	}
	if !strings.Contains(out, "PREDICATES") || !strings.Contains(out, "biolink:Gene") {
		t.Errorf("table output:\n%s", out)
	}

	_, err = run(t, "--url", url, "providers", "refresh")
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("refresh error = %v", err)
	}
}

func TestSynonymsCheck(t *testing.T) {
	path := writeFile(t, "syn.yaml", "groups:\n  - preferred: MONDO:1\n    equivalents: [DOID:1, MONDO:1]\n  - preferred: NCBIGene:7\n")

	out, err := run(t, "synonyms", "check", path)
	if err != nil {
		t.Fatalf("synonyms check: %v", err)
	}
	if strings.TrimSpace(out) != "2 groups, 3 curies" {
		t.Errorf("output = %q", out)
	}
}

func TestSynonymsImport_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	path := writeFile(t, "syn.yaml", "groups:\n  - preferred: MONDO:1\n")

	if _, err := run(t, "synonyms", "import", path); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error = %v", err)
	}
}

func TestFormatTable(t *testing.T) {
	var b strings.Builder
	formatTable(&b, []string{"A", "LONGER"}, [][]string{{"wide-cell", "x"}})
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != "A          LONGER" || lines[1] != "---------  ------" || lines[2] != "wide-cell  x" {
		t.Errorf("table = %q", lines)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 6); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
