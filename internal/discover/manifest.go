package discover

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sirocco-rt/sirocco-orch/internal/domain"
)

// Manifest lists models explicitly instead of discovering them, with
// per-model overrides for a grid where some models need extra flags or their
// own core count.
type Manifest struct {
	Models []ManifestEntry `yaml:"models"`
}

// ManifestEntry is one model in a manifest
type ManifestEntry struct {
	Path  string   `yaml:"path"`
	Flags []string `yaml:"flags,omitempty"`
	Cores int      `yaml:"cores,omitempty"`
}

// ManifestModel pairs a resolved model with its overrides
type ManifestModel struct {
	Model domain.Model
	Flags []string
	Cores int
}

// FromManifest loads a YAML manifest and resolves its entries. Relative model
// paths are resolved against the manifest's own directory.
func FromManifest(path string) ([]ManifestModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if len(manifest.Models) == 0 {
		return nil, fmt.Errorf("manifest %s lists no models", path)
	}

	base := filepath.Dir(path)
	out := make([]ManifestModel, 0, len(manifest.Models))
	for i, entry := range manifest.Models {
		if entry.Path == "" {
			return nil, fmt.Errorf("manifest %s: entry %d has no path", path, i)
		}
		fp := entry.Path
		if !filepath.IsAbs(fp) {
			fp = filepath.Join(base, fp)
		}
		m, err := domain.ParseModelPath(fp)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
		out = append(out, ManifestModel{Model: m, Flags: entry.Flags, Cores: entry.Cores})
	}
	return out, nil
}
