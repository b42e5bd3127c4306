// Package catalog holds the fixed list of selectable service categories.
//
// A catalog is loaded from a YAML file or, via the postgres subpackage, a
// database table. Each Catalog value is immutable; live edits to a catalog
// file are picked up by [Watcher], which loads a fresh Catalog and hands it
// to the engine. Record order is preserved everywhere: typed-search
// suggestions and fallback filtering present categories in catalog order.
package catalog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Record is one selectable service category.
type Record struct {
	// ID uniquely identifies the category within the catalog.
	ID string `yaml:"id" json:"id"`

	// Name is the display name and the sole matching key (case-insensitive).
	Name string `yaml:"name" json:"name"`

	// Icon is an opaque icon reference for the rendering layer.
	Icon string `yaml:"icon" json:"icon"`
}

// Catalog is an ordered, immutable set of category records with unique IDs.
// All methods are safe for concurrent use once constructed.
type Catalog struct {
	records []Record
	byID    map[string]Record
}

// New validates records and builds a Catalog. Records with an empty id or
// name, and duplicate ids, are rejected. An empty catalog is legal but is a
// configuration smell: it is logged once here and every match against it is
// empty.
func New(records []Record) (*Catalog, error) {
	byID := make(map[string]Record, len(records))
	kept := make([]Record, 0, len(records))

	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("catalog: record %d has an empty id", i)
		}
		if r.Name == "" {
			return nil, fmt.Errorf("catalog: record %q has an empty name", r.ID)
		}
		if _, dup := byID[r.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate id %q", r.ID)
		}
		byID[r.ID] = r
		kept = append(kept, r)
	}

	if len(kept) == 0 {
		slog.Warn("catalog: no categories loaded; all matching will return empty results")
	}

	return &Catalog{records: kept, byID: byID}, nil
}

// Records returns the categories in catalog order. The returned slice is a
// copy; callers may not mutate catalog state through it.
func (c *Catalog) Records() []Record {
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Get returns the record for id.
func (c *Catalog) Get(id string) (Record, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// Len returns the number of categories.
func (c *Catalog) Len() int { return len(c.records) }

// NameTokens normalizes a category name for token matching: lowercased and
// split on whitespace and the '&' separator.
func NameTokens(name string) []string {
	lower := strings.ToLower(name)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return r == '&' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}
