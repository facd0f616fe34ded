package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/persistorai/kpfed/internal/canon"
	"github.com/persistorai/kpfed/internal/models"
)

// SnapshotSource yields a fresh directory snapshot. *Cache satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Selector answers capability questions about providers.
type Selector struct {
	src   SnapshotSource
	canon canon.Canonicalizer
}

// NewSelector creates a Selector over src, rewriting curies through c.
func NewSelector(src SnapshotSource, c canon.Canonicalizer) *Selector {
	return &Selector{src: src, canon: c}
}

func (s *Selector) provider(ctx context.Context, name string) (ProviderInfo, error) {
	snap, err := s.src.Snapshot(ctx)
	if err != nil {
		return ProviderInfo{}, err
	}

	info, ok := snap.Providers[name]
	if !ok {
		return ProviderInfo{}, fmt.Errorf("%w: provider %q is not registered", models.ErrUnknownValue, name)
	}

	return info, nil
}

// EndpointURL returns the base URL of provider.
func (s *Selector) EndpointURL(ctx context.Context, provider string) (string, error) {
	info, err := s.provider(ctx, provider)
	if err != nil {
		return "", err
	}

	return info.URL, nil
}

// KPAcceptsSingleHopQG reports whether provider advertises support for the
// categories and predicates of a one-hop (or single-node) query graph. Empty
// categories or predicates match anything. Unless enforceDirectionality is
// set, the hop is also accepted when the provider supports it reversed.
func (s *Selector) KPAcceptsSingleHopQG(ctx context.Context, qg *models.QueryGraph, provider string, enforceDirectionality bool) (bool, error) {
	info, err := s.provider(ctx, provider)
	if err != nil {
		return false, err
	}

	return accepts(info, qg, enforceDirectionality), nil
}

// ProvidersFor returns, sorted, every provider that accepts qg.
func (s *Selector) ProvidersFor(ctx context.Context, qg *models.QueryGraph, enforceDirectionality bool) ([]string, error) {
	snap, err := s.src.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, name := range snap.ProviderNames() {
		if accepts(snap.Providers[name], qg, enforceDirectionality) {
			out = append(out, name)
		}
	}

	return out, nil
}

func accepts(info ProviderInfo, qg *models.QueryGraph, enforceDirectionality bool) bool {
	if !info.HasMeta() {
		return false
	}

	if len(qg.Edges) == 0 {
		for _, n := range qg.Nodes {
			if !categorySupported(info, n.Categories) {
				return false
			}
		}

		return true
	}

	for _, e := range qg.Edges {
		subj, obj := qg.Nodes[e.Subject], qg.Nodes[e.Object]
		if supportsTriple(info.Predicates, subj.Categories, obj.Categories, e.Predicates) {
			continue
		}

		if !enforceDirectionality && supportsTriple(info.Predicates, obj.Categories, subj.Categories, e.Predicates) {
			continue
		}

		return false
	}

	return true
}

func categorySupported(info ProviderInfo, categories []string) bool {
	if len(categories) == 0 {
		return true
	}

	for _, c := range categories {
		if _, ok := info.Prefixes[c]; ok {
			return true
		}
	}

	return false
}

func supportsTriple(meta map[string]map[string][]string, subjCats, objCats, preds []string) bool {
	for subj, objs := range meta {
		if !matchesAny(subj, subjCats) {
			continue
		}

		for obj, supported := range objs {
			if !matchesAny(obj, objCats) {
				continue
			}

			if len(preds) == 0 && len(supported) > 0 {
				return true
			}

			for _, p := range supported {
				if matchesAny(p, preds) {
					return true
				}
			}
		}
	}

	return false
}

// matchesAny treats an empty want list as a wildcard.
func matchesAny(v string, want []string) bool {
	if len(want) == 0 {
		return true
	}

	for _, w := range want {
		if w == v {
			return true
		}
	}

	return false
}

// MakeQGUseSupportedPrefixes returns a copy of qg whose qnode ids are replaced
// by the equivalent curies carrying a prefix the provider accepts for that
// qnode's categories. It returns nil when some qnode with ids has no usable
// equivalent. A provider without prefix data gets the ids unchanged.
func (s *Selector) MakeQGUseSupportedPrefixes(ctx context.Context, qg *models.QueryGraph, provider string) (*models.QueryGraph, error) {
	info, err := s.provider(ctx, provider)
	if err != nil {
		return nil, err
	}

	out := qg.Clone()
	if len(info.Prefixes) == 0 {
		return out, nil
	}

	for _, key := range out.NodeKeys() {
		n := out.Nodes[key]
		if len(n.IDs) == 0 {
			continue
		}

		allowed := supportedPrefixes(info, n.Categories)

		equivalents, err := s.canon.EquivalentCuries(ctx, n.IDs)
		if err != nil {
			return nil, fmt.Errorf("looking up equivalent curies: %w", err)
		}

		seen := map[string]bool{}
		var ids []string

		for _, id := range n.IDs {
			for _, eq := range equivalents[id] {
				if seen[eq] || !allowed[strings.ToUpper(curiePrefix(eq))] {
					continue
				}

				seen[eq] = true
				ids = append(ids, eq)
			}
		}

		if len(ids) == 0 {
			return nil, nil
		}

		n.IDs = ids
		out.Nodes[key] = n
	}

	return out, nil
}

// supportedPrefixes collects upper-cased prefixes for categories, or for
// every category when none are given.
func supportedPrefixes(info ProviderInfo, categories []string) map[string]bool {
	out := map[string]bool{}

	add := func(prefixes []string) {
		for _, p := range prefixes {
			out[strings.ToUpper(p)] = true
		}
	}

	if len(categories) == 0 {
		for _, prefixes := range info.Prefixes {
			add(prefixes)
		}

		return out
	}

	for _, c := range categories {
		add(info.Prefixes[c])
	}

	return out
}

func curiePrefix(curie string) string {
	prefix, _, found := strings.Cut(curie, ":")
	if !found {
		return ""
	}

	return prefix
}

