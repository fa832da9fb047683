package data

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/petward/server/internal/companion"
)

// CompanionTypes is the companion type table loaded from YAML.
type CompanionTypes struct {
	Roaming  []string `yaml:"roaming"`  // type paths bucketed as roaming mounts
	Excluded []string `yaml:"excluded"` // substrings of owned non-companion types
	Markers  []string `yaml:"markers"`  // tags that mark a tamable companion
}

// LoadCompanionTypes reads the table. A missing file yields the built-in
// defaults.
func LoadCompanionTypes(path string) (*companion.Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return companion.DefaultCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read companion_types: %w", err)
	}
	var f CompanionTypes
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse companion_types: %w", err)
	}
	return companion.NewCatalog(f.Roaming, f.Excluded, f.Markers), nil
}
