package schema

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gwicke/storoid/internal/core"
)

func revisionedSchema() *core.Schema {
	return &core.Schema{
		Attributes: map[string]string{
			"key":   "string",
			"rev":   "varint",
			"title": "string",
			"body":  "blob",
		},
		Index: core.Index{
			Hash:  "key",
			Range: core.StringList{"rev"},
		},
		SecondaryIndexes: map[string]*core.Index{
			"by_title": {Hash: "title"},
		},
	}
}

func TestEnrichPrimaryIndexAttributes(t *testing.T) {
	s := revisionedSchema()
	if err := Enrich(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]bool{"key": true, "rev": true}
	if !reflect.DeepEqual(s.IndexAttributes, want) {
		t.Errorf("IndexAttributes = %v, want %v", s.IndexAttributes, want)
	}
}

func TestCompanionClosureWithImplicitTID(t *testing.T) {
	s := revisionedSchema()
	if err := Enrich(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	comp := s.IndexSchemas["by_title"]
	if comp == nil {
		t.Fatal("no companion synthesized")
	}

	// Key columns close over the primary key and get an implicit timeuuid
	// tiebreaker.
	if comp.Index.Hash != "title" {
		t.Errorf("hash = %q, want title", comp.Index.Hash)
	}
	wantRange := core.StringList{"key", "rev", TID}
	if !reflect.DeepEqual(comp.Index.Range, wantRange) {
		t.Errorf("range = %v, want %v", comp.Index.Range, wantRange)
	}
	if comp.Attributes[TID] != "timeuuid" {
		t.Errorf("_tid type = %q, want timeuuid", comp.Attributes[TID])
	}

	// Synthesized companion attributes are present, with __consistentUpTo
	// marked static.
	if comp.Attributes[ConsistentUpTo] != "timeuuid" {
		t.Errorf("__consistentUpTo type = %q", comp.Attributes[ConsistentUpTo])
	}
	if comp.Attributes[Tombstone] != "boolean" {
		t.Errorf("__tombstone type = %q", comp.Attributes[Tombstone])
	}
	if !comp.Index.Static.Contains(ConsistentUpTo) {
		t.Error("__consistentUpTo not marked static")
	}
}

func TestCompanionKeysSupersetOfPrimary(t *testing.T) {
	s := revisionedSchema()
	s.SecondaryIndexes["by_body"] = &core.Index{Hash: "body", Range: core.StringList{"title"}}
	if err := Enrich(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for name, comp := range s.IndexSchemas {
		for attr := range s.IndexAttributes {
			if !comp.IndexAttributes[attr] {
				t.Errorf("%s: key columns missing primary key column %q", name, attr)
			}
		}
		tids := false
		for _, r := range comp.Index.Range {
			if comp.Attributes[r] == "timeuuid" {
				tids = true
			}
		}
		if !tids {
			t.Errorf("%s: no timeuuid clustering column", name)
		}
	}
}

func TestCompanionWithTimeUUIDRange(t *testing.T) {
	s := &core.Schema{
		Attributes: map[string]string{
			"key":   "string",
			"tid":   "timeuuid",
			"title": "string",
		},
		Index: core.Index{Hash: "key", Range: core.StringList{"tid"}},
		SecondaryIndexes: map[string]*core.Index{
			"by_title": {Hash: "title"},
		},
	}
	if err := Enrich(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	comp := s.IndexSchemas["by_title"]
	// The inherited tid clustering column satisfies the timeuuid
	// requirement; no implicit _tid is added.
	if _, ok := comp.Attributes[TID]; ok {
		t.Errorf("unexpected implicit _tid: %v", comp.Index.Range)
	}
	wantRange := core.StringList{"key", "tid"}
	if !reflect.DeepEqual(comp.Index.Range, wantRange) {
		t.Errorf("range = %v, want %v", comp.Index.Range, wantRange)
	}
}

func TestCompanionProjection(t *testing.T) {
	s := revisionedSchema()
	s.SecondaryIndexes["by_title"].Proj = core.StringList{"body"}
	if err := Enrich(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	comp := s.IndexSchemas["by_title"]
	if comp.Attributes["body"] != "blob" {
		t.Errorf("projected attribute type = %q, want blob", comp.Attributes["body"])
	}
	if comp.IndexAttributes["body"] {
		t.Error("projected attribute must not be a key column")
	}
}

func TestCompanionDegenerateHash(t *testing.T) {
	// An index on the primary hash is a degenerate duplicate of the primary
	// with added clustering; it synthesizes fine.
	s := revisionedSchema()
	s.SecondaryIndexes = map[string]*core.Index{
		"by_key": {Hash: "key"},
	}
	if err := Enrich(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	comp := s.IndexSchemas["by_key"]
	wantRange := core.StringList{"rev", TID}
	if !reflect.DeepEqual(comp.Index.Range, wantRange) {
		t.Errorf("range = %v, want %v", comp.Index.Range, wantRange)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.Schema)
	}{
		{"missing hash", func(s *core.Schema) { s.Index.Hash = "" }},
		{"undefined hash", func(s *core.Schema) { s.Index.Hash = "nope" }},
		{"undefined range", func(s *core.Schema) { s.Index.Range = core.StringList{"nope"} }},
		{"unknown type", func(s *core.Schema) { s.Attributes["key"] = "int" }},
		{"undefined secondary hash", func(s *core.Schema) {
			s.SecondaryIndexes["broken"] = &core.Index{Hash: "nope"}
		}},
		{"undefined projection", func(s *core.Schema) {
			s.SecondaryIndexes["by_title"].Proj = core.StringList{"nope"}
		}},
	}
	for _, tt := range tests {
		s := revisionedSchema()
		tt.mutate(s)
		err := Enrich(s)
		var schemaErr *core.SchemaError
		if !errors.As(err, &schemaErr) {
			t.Errorf("%s: expected SchemaError, got %v", tt.name, err)
		}
	}
}
