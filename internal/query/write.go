package query

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/internal/cql"
	"github.com/gwicke/storoid/internal/schema"
	"github.com/gwicke/storoid/internal/tid"
)

// PlanPut compiles a put request into the primary statement plus one
// companion statement per secondary index. Each statement's key/value split
// follows its own table's key attribute set. The statements are meant to be
// dispatched as a single batch when there is more than one.
func PlanPut(keyspace string, req *core.WriteRequest, s *core.Schema) ([]core.Statement, error) {
	attrs := make(map[string]interface{}, len(req.Attributes)+1)
	for k, v := range req.Attributes {
		attrs[k] = v
	}

	// Synthesize one shared _tid for the whole logical write so every
	// companion addresses the same row generation.
	if _, supplied := attrs[schema.TID]; !supplied && needsTID(s) {
		attrs[schema.TID] = tid.New()
	}

	// The primary only carries declared attributes; a synthesized _tid is
	// for companions unless the primary schema declares it.
	primaryAttrs := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if _, ok := s.Attributes[k]; ok {
			primaryAttrs[k] = v
		}
	}
	primary, err := Upsert(keyspace, "data", primaryAttrs, s.IndexAttributes, req.If)
	if err != nil {
		return nil, err
	}
	stmts := []core.Statement{primary}

	for _, name := range sortedIndexNames(s) {
		comp := s.IndexSchemas[name]
		compAttrs := make(map[string]interface{}, len(comp.Attributes))
		for k, v := range attrs {
			if _, ok := comp.Attributes[k]; ok {
				compAttrs[k] = v
			}
		}
		stmt, err := Upsert(keyspace, "i_"+name, compAttrs, comp.IndexAttributes, nil)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// Upsert builds the insert-or-update statement for one column family.
// A write carrying only key attributes, or one guarded by "not exists",
// becomes an INSERT with key values bound first; everything else becomes an
// UPDATE binding non-key values first. A predicate-shaped condition is
// appended as an IF guard.
func Upsert(keyspace, family string, attrs map[string]interface{}, keyAttrs map[string]bool, cond interface{}) (core.Statement, error) {
	keys := make([]string, 0, len(keyAttrs))
	for k := range keyAttrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	keyParams := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		v, ok := attrs[k]
		if !ok {
			return core.Statement{}, core.Schemaf("Index attribute %s missing", k)
		}
		keyParams = append(keyParams, v)
	}

	var nonKeys []string
	for name := range attrs {
		if !keyAttrs[name] {
			nonKeys = append(nonKeys, name)
		}
	}
	sort.Strings(nonKeys)

	nonKeyParams := make([]interface{}, 0, len(nonKeys))
	for _, name := range nonKeys {
		nonKeyParams = append(nonKeyParams, encodeValue(attrs[name]))
	}

	table := cql.Qualified(keyspace, family)
	if len(nonKeys) == 0 || isNotExists(cond) {
		cols := make([]string, 0, len(keys)+len(nonKeys))
		for _, k := range keys {
			cols = append(cols, cql.QuoteID(k))
		}
		for _, n := range nonKeys {
			cols = append(cols, cql.QuoteID(n))
		}
		q := "INSERT INTO " + table + " (" + strings.Join(cols, ",") + ") VALUES (" +
			strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
		stmt := core.Statement{Query: q, Params: append(keyParams, nonKeyParams...)}
		if isNotExists(cond) {
			stmt.Query += " IF NOT EXISTS"
			stmt.CAS = true
		}
		return stmt, nil
	}

	assigns := make([]string, len(nonKeys))
	for i, n := range nonKeys {
		assigns[i] = cql.QuoteID(n) + " = ?"
	}
	wheres := make([]string, len(keys))
	for i, k := range keys {
		wheres[i] = cql.QuoteID(k) + " = ?"
	}
	stmt := core.Statement{
		Query:  "UPDATE " + table + " SET " + strings.Join(assigns, ", ") + " WHERE " + strings.Join(wheres, " AND "),
		Params: append(nonKeyParams, keyParams...),
	}
	if cond != nil {
		pred, ok := cond.(map[string]interface{})
		if !ok {
			return core.Statement{}, core.Schemaf("invalid if condition")
		}
		guard, ps, err := cql.Where(pred)
		if err != nil {
			return core.Statement{}, err
		}
		stmt.Query += " IF " + guard
		stmt.Params = append(stmt.Params, ps...)
		stmt.CAS = true
	}
	return stmt, nil
}

// isNotExists recognises the literal "not exists" condition, ignoring case
// and surrounding or repeated whitespace.
func isNotExists(cond interface{}) bool {
	s, ok := cond.(string)
	if !ok {
		return false
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ") == "not exists"
}

// encodeValue JSON-encodes values whose runtime shape is an object so they
// can be bound to text columns. Keys are assumed scalar; only non-key values
// pass through here.
func encodeValue(v interface{}) interface{} {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		if doc, err := json.Marshal(v); err == nil {
			return string(doc)
		}
	}
	return v
}

func needsTID(s *core.Schema) bool {
	if s.IndexAttributes[schema.TID] {
		return true
	}
	for _, comp := range s.IndexSchemas {
		if comp.IndexAttributes[schema.TID] {
			return true
		}
	}
	return false
}

func sortedIndexNames(s *core.Schema) []string {
	names := make([]string, 0, len(s.IndexSchemas))
	for name := range s.IndexSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
