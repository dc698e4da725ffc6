// Package schema validates logical schema documents, synthesizes secondary
// index companion schemas, and persists schema documents in the per-keyspace
// meta column family.
package schema

import (
	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/internal/cql"
)

// Validate checks a user-supplied schema document: the partition column must
// be named and typed, every name referenced by the primary index or a
// secondary index descriptor must appear in attributes, and every attribute
// type must be a known logical type. Validation is eager; createTable fails
// before any DDL is issued.
func Validate(s *core.Schema) error {
	if len(s.Attributes) == 0 {
		return core.Schemaf("schema has no attributes")
	}
	for name, logical := range s.Attributes {
		if _, err := cql.PhysicalType(logical); err != nil {
			return core.Schemaf("attribute %q: unknown logical type %q", name, logical)
		}
	}
	if err := validateIndex(s, &s.Index, ""); err != nil {
		return err
	}
	for name, def := range s.SecondaryIndexes {
		if def == nil {
			return core.Schemaf("secondary index %q has no descriptor", name)
		}
		if err := validateIndex(s, def, name); err != nil {
			return err
		}
	}
	return nil
}

func validateIndex(s *core.Schema, idx *core.Index, indexName string) error {
	where := "index"
	if indexName != "" {
		where = "secondary index " + indexName
	}
	if idx.Hash == "" {
		return core.Schemaf("%s: hash attribute missing", where)
	}
	if _, ok := s.Attributes[idx.Hash]; !ok {
		return core.Schemaf("%s: hash attribute %q not defined", where, idx.Hash)
	}
	for _, r := range idx.Range {
		if _, ok := s.Attributes[r]; !ok {
			return core.Schemaf("%s: range attribute %q not defined", where, r)
		}
	}
	for _, st := range idx.Static {
		if _, ok := s.Attributes[st]; !ok {
			return core.Schemaf("%s: static attribute %q not defined", where, st)
		}
	}
	for _, p := range idx.Proj {
		if _, ok := s.Attributes[p]; !ok {
			return core.Schemaf("%s: projected attribute %q not defined", where, p)
		}
	}
	return nil
}
