package query

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/internal/cql"
)

// MetaSchema is the fixed schema of the per-keyspace meta column family,
// a two-column key/value table holding the schema document.
var MetaSchema = &core.Schema{
	Attributes: map[string]string{
		"key":   "string",
		"value": "json",
	},
	Index:           core.Index{Hash: "key"},
	IndexAttributes: map[string]bool{"key": true},
}

// storageClasses enumerates the replication strategy classes a request may
// name. DDL text cannot carry bind markers, so the class is validated
// against this closed set before it is spliced into the statement.
var storageClasses = map[string]bool{
	"SimpleStrategy":          true,
	"NetworkTopologyStrategy": true,
}

// CreateKeyspace emits the keyspace DDL. StorageClass defaults to
// SimpleStrategy and ReplicationFactor to 3.
func CreateKeyspace(keyspace string, opts core.SchemaOptions) (core.Statement, error) {
	class := opts.StorageClass
	if class == "" {
		class = "SimpleStrategy"
	}
	if !storageClasses[class] {
		return core.Statement{}, core.Schemaf("unknown storage class %q", class)
	}
	rf := opts.ReplicationFactor
	if rf == 0 {
		rf = 3
	}
	if rf < 1 {
		return core.Statement{}, core.Schemaf("replication factor must be positive")
	}
	q := "CREATE KEYSPACE " + cql.QuoteID(keyspace) +
		" WITH REPLICATION = { 'class': '" + class + "', 'replication_factor': " + strconv.Itoa(rf) + " }"
	return core.Statement{Query: q}, nil
}

// CreateTable emits the column family DDL for a schema: one typed column
// per attribute, static modifiers, the primary key, leveled compaction, and
// a clustering order clause when the schema gives one.
func CreateTable(keyspace, family string, s *core.Schema) (core.Statement, error) {
	cols := []string{s.Index.Hash}
	cols = append(cols, s.Index.Range...)
	rest := make([]string, 0, len(s.Attributes))
	for name := range s.Attributes {
		if name != s.Index.Hash && !s.Index.Range.Contains(name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	cols = append(cols, rest...)

	defs := make([]string, 0, len(cols)+1)
	for _, name := range cols {
		phys, err := cql.PhysicalType(s.Attributes[name])
		if err != nil {
			return core.Statement{}, err
		}
		def := cql.QuoteID(name) + " " + phys
		if s.Index.Static.Contains(name) {
			def += " static"
		}
		defs = append(defs, def)
	}

	pk := make([]string, 0, len(s.Index.Range)+1)
	pk = append(pk, cql.QuoteID(s.Index.Hash))
	for _, r := range s.Index.Range {
		pk = append(pk, cql.QuoteID(r))
	}
	defs = append(defs, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")

	q := "CREATE TABLE " + cql.Qualified(keyspace, family) +
		" (" + strings.Join(defs, ", ") + ")" +
		" WITH compaction = { 'class' : 'LeveledCompactionStrategy' }"

	if clause := clusteringOrder(s); clause != "" {
		q += " AND CLUSTERING ORDER BY (" + clause + ")"
	}
	return core.Statement{Query: q}, nil
}

// clusteringOrder pairs clustering columns with their validated directions.
// Directions outside {asc, desc} are dropped.
func clusteringOrder(s *core.Schema) string {
	var pairs []string
	for i, dir := range s.Index.Order {
		if i >= len(s.Index.Range) {
			break
		}
		dir = strings.ToLower(dir)
		if dir != "asc" && dir != "desc" {
			continue
		}
		pairs = append(pairs, cql.QuoteID(s.Index.Range[i])+" "+dir)
	}
	return strings.Join(pairs, ", ")
}

// DropKeyspace emits the keyspace drop.
func DropKeyspace(keyspace string) core.Statement {
	return core.Statement{Query: "DROP KEYSPACE " + cql.QuoteID(keyspace)}
}

// SchemaInsert persists the schema document into the meta column family
// through the regular write path.
func SchemaInsert(keyspace string, s *core.Schema) (core.Statement, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return core.Statement{}, core.Schemaf("failed to serialize schema: %v", err)
	}
	attrs := map[string]interface{}{
		"key":   "schema",
		"value": string(doc),
	}
	return Upsert(keyspace, "meta", attrs, MetaSchema.IndexAttributes, nil)
}
