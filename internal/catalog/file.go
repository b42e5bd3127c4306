package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSchema is the YAML document shape for a catalog file:
//
//	categories:
//	  - id: plumbing
//	    name: Plumbers & Home Repair
//	    icon: wrench
type fileSchema struct {
	Categories []Record `yaml:"categories"`
}

// Load reads and validates the catalog file at path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", path, err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse %q: %w", path, err)
	}
	return c, nil
}

// Decode reads a YAML catalog document from r and validates the result.
// Useful in tests where catalogs are constructed from string literals.
func Decode(r io.Reader) (*Catalog, error) {
	var doc fileSchema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return New(doc.Categories)
}
