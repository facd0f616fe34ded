package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/persistorai/kpfed/internal/models"
)

// ProviderInfo is what the directory knows about one provider.
type ProviderInfo struct {
	URL string `json:"url"`
	// Predicates maps subject category -> object category -> predicates.
	Predicates map[string]map[string][]string `json:"predicates,omitempty"`
	// Prefixes maps category -> accepted id prefixes.
	Prefixes map[string][]string `json:"prefixes,omitempty"`
}

// HasMeta reports whether capability data was ever fetched for the provider.
func (p ProviderInfo) HasMeta() bool {
	return len(p.Predicates) > 0 || len(p.Prefixes) > 0
}

// Snapshot is an immutable view of the directory.
type Snapshot struct {
	UpdatedAt time.Time               `json:"updated_at"`
	Providers map[string]ProviderInfo `json:"providers"`
}

// ProviderNames returns the known providers in sorted order.
func (s *Snapshot) ProviderNames() []string {
	names := make([]string, 0, len(s.Providers))
	for name := range s.Providers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Stale reports whether the snapshot is older than maxAge at now.
func (s *Snapshot) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.UpdatedAt) > maxAge
}

// ProviderInfoFromMeta converts a /meta_knowledge_graph body into ProviderInfo.
func ProviderInfoFromMeta(url string, meta *models.MetaKnowledgeGraph) ProviderInfo {
	info := ProviderInfo{
		URL:        url,
		Predicates: map[string]map[string][]string{},
		Prefixes:   map[string][]string{},
	}

	for category, node := range meta.Nodes {
		info.Prefixes[category] = append([]string(nil), node.IDPrefixes...)
	}

	seen := map[[3]string]bool{}
	for _, e := range meta.Edges {
		k := [3]string{e.Subject, e.Object, e.Predicate}
		if seen[k] {
			continue
		}

		seen[k] = true

		if info.Predicates[e.Subject] == nil {
			info.Predicates[e.Subject] = map[string][]string{}
		}

		info.Predicates[e.Subject][e.Object] = append(info.Predicates[e.Subject][e.Object], e.Predicate)
	}

	return info
}

// readSnapshot loads a snapshot from path. A missing file returns (nil, nil).
func readSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from configuration
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	if s.Providers == nil {
		s.Providers = map[string]ProviderInfo{}
	}

	return &s, nil
}

// writeSnapshot writes s to path.tmp and renames it over path, so readers
// never observe a partially written file.
func writeSnapshot(path string, s *Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	return nil
}

// writePIDMarker records the refreshing process id at path.
func writePIDMarker(path string) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("writing refresh marker: %w", err)
	}

	return nil
}

// ReadPIDMarker returns the pid recorded by a refresh in progress, or 0 when none is recorded.
func ReadPIDMarker(dir string) int {
	data, err := os.ReadFile(filepath.Join(dir, pidFileName)) //nolint:gosec // path is built from configuration
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}

	return pid
}
