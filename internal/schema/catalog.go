package schema

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Catalog is the set of tables registered at startup
type Catalog struct {
	Tables []*Schema `yaml:"tables"`
}

// ParseCatalog decodes and compiles a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	names := make(map[string]struct{}, len(c.Tables))
	for _, s := range c.Tables {
		if err := s.Compile(); err != nil {
			return nil, err
		}
		if _, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("duplicate table %s in catalog", s.Name)
		}
		names[s.Name] = struct{}{}
	}
	return &c, nil
}

// LoadCatalog reads a catalog file. An empty path yields the built-in
// storefront catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in storefront tables
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// Table returns the schema with the given name
func (c *Catalog) Table(name string) (*Schema, bool) {
	for _, s := range c.Tables {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}
