package schema

import (
	"github.com/gwicke/storoid/internal/core"
)

// Synthesized companion attributes. ConsistentUpTo is a static timeuuid
// marking how far the companion has been reconciled against the primary;
// Tombstone flags companion rows whose primary row was deleted. TID is the
// implicit clustering tiebreaker appended when a companion has no timeuuid
// clustering column of its own.
const (
	ConsistentUpTo = "__consistentUpTo"
	Tombstone      = "__tombstone"
	TID            = "_tid"
)

// Enrich validates a schema document in place and computes its derived
// state: the primary key attribute set and one fully synthesized companion
// schema per secondary index. Enrich is idempotent; the derived fields are
// recomputed from the serialized document each time.
func Enrich(s *core.Schema) error {
	if err := Validate(s); err != nil {
		return err
	}
	s.IndexAttributes = keyAttributes(&s.Index)
	s.IndexSchemas = make(map[string]*core.Schema, len(s.SecondaryIndexes))
	for name, def := range s.SecondaryIndexes {
		comp, err := companion(s, def)
		if err != nil {
			return err
		}
		s.IndexSchemas[name] = comp
	}
	return nil
}

// companion synthesizes the schema of a secondary index companion table.
// The companion's key columns are a superset of the primary key columns so
// a companion row can always be addressed alongside its primary row, and at
// least one clustering column is a timeuuid so rows order naturally in time.
func companion(parent *core.Schema, def *core.Index) (*core.Schema, error) {
	comp := &core.Schema{
		Attributes: map[string]string{
			ConsistentUpTo: "timeuuid",
			Tombstone:      "boolean",
		},
		Index: core.Index{
			Hash:   def.Hash,
			Static: core.StringList{ConsistentUpTo},
		},
	}
	comp.Attributes[def.Hash] = parent.Attributes[def.Hash]

	rng := append(core.StringList{}, def.Range...)
	present := func(name string) bool {
		if _, ok := comp.Attributes[name]; ok {
			return true
		}
		return rng.Contains(name)
	}

	// Close over the primary key: the primary hash and every primary range
	// column missing from the companion become trailing clustering columns.
	if !present(parent.Index.Hash) {
		rng = append(rng, parent.Index.Hash)
	}
	for _, r := range parent.Index.Range {
		if !present(r) {
			rng = append(rng, r)
		}
	}

	for _, r := range rng {
		typ, ok := parent.Attributes[r]
		if !ok {
			return nil, core.Schemaf("companion range attribute %q not defined", r)
		}
		comp.Attributes[r] = typ
	}

	if !hasTimeUUIDClustering(comp.Attributes, rng) {
		comp.Attributes[TID] = "timeuuid"
		rng = append(rng, TID)
	}

	for _, p := range def.Proj {
		comp.Attributes[p] = parent.Attributes[p]
	}
	comp.Index.Range = rng
	comp.Index.Order = append(core.StringList{}, def.Order...)
	comp.Index.Proj = append(core.StringList{}, def.Proj...)
	comp.IndexAttributes = keyAttributes(&comp.Index)
	return comp, nil
}

func hasTimeUUIDClustering(attrs map[string]string, rng core.StringList) bool {
	for _, r := range rng {
		if attrs[r] == "timeuuid" {
			return true
		}
	}
	return false
}

func keyAttributes(idx *core.Index) map[string]bool {
	keys := make(map[string]bool, len(idx.Range)+1)
	keys[idx.Hash] = true
	for _, r := range idx.Range {
		keys[r] = true
	}
	return keys
}
