// Package canon resolves curies to their preferred form and to their known synonyms.
package canon

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Info is the preferred form of a curie.
type Info struct {
	PreferredCurie    string `json:"preferred_curie"`
	PreferredName     string `json:"preferred_name,omitempty"`
	PreferredCategory string `json:"preferred_category,omitempty"`
}

// Canonicalizer looks up preferred curies and synonym sets.
type Canonicalizer interface {
	// CanonicalCuries returns an entry for every id it recognizes. Unknown ids are omitted.
	CanonicalCuries(ctx context.Context, ids []string) (map[string]Info, error)
	// EquivalentCuries returns the synonym set of every id, the id itself included.
	// Unknown ids map to themselves.
	EquivalentCuries(ctx context.Context, ids []string) (map[string][]string, error)
}

// Group is one synonym set as stored in a synonyms file.
type Group struct {
	Preferred   string   `yaml:"preferred"`
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Equivalents []string `yaml:"equivalents"`
}

// Members returns the preferred curie followed by its equivalents, deduplicated.
func (g *Group) Members() []string {
	seen := map[string]bool{g.Preferred: true}
	out := []string{g.Preferred}

	rest := make([]string, 0, len(g.Equivalents))
	for _, id := range g.Equivalents {
		if !seen[id] {
			seen[id] = true
			rest = append(rest, id)
		}
	}

	sort.Strings(rest)

	return append(out, rest...)
}

type synonymsFile struct {
	Groups []Group `yaml:"groups"`
}

// LoadGroups reads synonym groups from a YAML file.
func LoadGroups(path string) ([]Group, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("reading synonyms file: %w", err)
	}

	var f synonymsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing synonyms file: %w", err)
	}

	for i, g := range f.Groups {
		if g.Preferred == "" {
			return nil, fmt.Errorf("synonyms file: group %d has no preferred curie", i)
		}
	}

	return f.Groups, nil
}

// Static is an in-memory Canonicalizer. A Static with no groups maps every id to itself.
type Static struct {
	byID map[string]*Group
}

// NewStatic indexes groups by every member curie. Later groups win on overlap.
func NewStatic(groups []Group) *Static {
	s := &Static{byID: make(map[string]*Group)}

	for i := range groups {
		g := &groups[i]
		for _, id := range g.Members() {
			s.byID[id] = g
		}
	}

	return s
}

// LoadStatic builds a Static from a YAML synonyms file.
func LoadStatic(path string) (*Static, error) {
	groups, err := LoadGroups(path)
	if err != nil {
		return nil, err
	}

	return NewStatic(groups), nil
}

// CanonicalCuries implements Canonicalizer.
func (s *Static) CanonicalCuries(_ context.Context, ids []string) (map[string]Info, error) {
	out := make(map[string]Info, len(ids))

	for _, id := range ids {
		if g, ok := s.byID[id]; ok {
			out[id] = Info{PreferredCurie: g.Preferred, PreferredName: g.Name, PreferredCategory: g.Category}
		}
	}

	return out, nil
}

// EquivalentCuries implements Canonicalizer.
func (s *Static) EquivalentCuries(_ context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))

	for _, id := range ids {
		if g, ok := s.byID[id]; ok {
			out[id] = g.Members()
		} else {
			out[id] = []string{id}
		}
	}

	return out, nil
}
