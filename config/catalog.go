package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skillsim/progress-hub/internal/domain/progress"
)

// catalogFile is the YAML layout of a skill catalog:
//
//	skills:
//	  - name: Hand Hygiene
//	    skillId: hand-hygiene
type catalogFile struct {
	Skills []progress.CatalogEntry `yaml:"skills"`
}

// LoadCatalog reads the skill catalog at path. An empty path returns the
// built-in catalog.
func LoadCatalog(path string) (*progress.Catalog, error) {
	if path == "" {
		return progress.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML skill catalog.
func ParseCatalog(data []byte) (*progress.Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Skills) == 0 {
		return nil, fmt.Errorf("parse catalog: no skills defined")
	}
	return progress.NewCatalog(f.Skills)
}
