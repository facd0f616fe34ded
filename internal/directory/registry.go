// Package directory tracks which knowledge providers exist, where they live,
// and what they can answer. Capability data comes from each provider's
// /meta_knowledge_graph endpoint and is cached on disk.
package directory

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RegistryEntry is one provider listed in the registry file.
type RegistryEntry struct {
	Infores string `yaml:"infores"`
	URL     string `yaml:"url"`
}

type registryFile struct {
	Providers []RegistryEntry `yaml:"providers"`
}

// LoadRegistry reads the provider registry and returns infores -> endpoint URL.
// Trailing slashes are stripped. Entries without a URL are skipped.
func LoadRegistry(path string) (map[string]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}

	out := make(map[string]string, len(f.Providers))
	for _, p := range f.Providers {
		if p.Infores == "" || p.URL == "" {
			continue
		}

		out[p.Infores] = strings.TrimRight(p.URL, "/")
	}

	return out, nil
}
