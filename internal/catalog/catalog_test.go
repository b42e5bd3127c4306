package catalog_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/okarinen/voicepick/internal/catalog"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		records []catalog.Record
		wantErr string
	}{
		{
			name:    "duplicate id",
			records: []catalog.Record{{ID: "1", Name: "A"}, {ID: "1", Name: "B"}},
			wantErr: "duplicate id",
		},
		{
			name:    "empty id",
			records: []catalog.Record{{Name: "A"}},
			wantErr: "empty id",
		},
		{
			name:    "empty name",
			records: []catalog.Record{{ID: "1"}},
			wantErr: "empty name",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := catalog.New(tt.records)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_EmptyCatalogIsLegal(t *testing.T) {
	t.Parallel()

	cat, err := catalog.New(nil)
	if err != nil {
		t.Fatalf("New(nil): %v", err)
	}
	if cat.Len() != 0 {
		t.Errorf("Len = %d, want 0", cat.Len())
	}
}

func TestRecordsPreserveOrderAndCopy(t *testing.T) {
	t.Parallel()

	cat, err := catalog.New([]catalog.Record{
		{ID: "b", Name: "Beta"},
		{ID: "a", Name: "Alpha"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	recs := cat.Records()
	if recs[0].ID != "b" || recs[1].ID != "a" {
		t.Errorf("Records order = %v, want input order", recs)
	}

	recs[0].Name = "mutated"
	if again := cat.Records(); again[0].Name != "Beta" {
		t.Error("Records() returned a slice aliasing catalog state")
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	cat, err := catalog.New([]catalog.Record{{ID: "1", Name: "Hotels & Travel", Icon: "bed"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r, ok := cat.Get("1")
	if !ok || r.Icon != "bed" {
		t.Errorf("Get(1) = %+v, %v", r, ok)
	}
	if _, ok := cat.Get("nope"); ok {
		t.Error("Get(nope) reported present")
	}
}

func TestNameTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"ampersand split", "Plumbers & Home Repair", []string{"plumbers", "home", "repair"}},
		{"glued ampersand", "Hotels&Travel", []string{"hotels", "travel"}},
		{"single word", "Electricians", []string{"electricians"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := catalog.NameTokens(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NameTokens(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	doc := `
categories:
  - id: plumbing
    name: Plumbers & Home Repair
    icon: wrench
  - id: hotels
    name: Hotels & Travel
    icon: bed
`
	cat, err := catalog.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("Len = %d, want 2", cat.Len())
	}
	if r, _ := cat.Get("plumbing"); r.Icon != "wrench" {
		t.Errorf("plumbing icon = %q, want wrench", r.Icon)
	}
}

func TestDecode_UnknownField(t *testing.T) {
	t.Parallel()

	doc := `
categories:
  - id: x
    name: X
    rank: 3
`
	if _, err := catalog.Decode(strings.NewReader(doc)); err == nil {
		t.Fatal("Decode accepted an unknown field")
	}
}
