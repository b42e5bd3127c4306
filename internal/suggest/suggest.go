// Package suggest provides the live typed-search filter over the catalog.
//
// Typed input is precise, so unlike the spoken-transcript matcher this is a
// plain substring containment test with no tokenization and no fallback. It
// runs on every keystroke; the catalog is small and wholly in memory, so a
// linear scan is both fast enough and allocation-light.
package suggest

import (
	"strings"

	"github.com/okarinen/voicepick/internal/catalog"
)

// Index filters a fixed catalog by query. It is read-only after construction
// and safe for concurrent use.
type Index struct {
	records []catalog.Record
	lower   []string
}

// NewIndex builds an Index over cat. Lowercased names are precomputed once so
// Filter does no per-keystroke normalization of the catalog side.
func NewIndex(cat *catalog.Catalog) *Index {
	records := cat.Records()
	lower := make([]string, len(records))
	for i, r := range records {
		lower[i] = strings.ToLower(r.Name)
	}
	return &Index{records: records, lower: lower}
}

// Filter returns every category whose name contains query as a
// case-insensitive substring, preserving catalog order. An empty query
// returns the full catalog.
func (ix *Index) Filter(query string) []catalog.Record {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		out := make([]catalog.Record, len(ix.records))
		copy(out, ix.records)
		return out
	}

	var out []catalog.Record
	for i, name := range ix.lower {
		if strings.Contains(name, q) {
			out = append(out, ix.records[i])
		}
	}
	return out
}
