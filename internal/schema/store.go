package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/internal/cql"
)

// schemaKey is the meta-table key under which the schema document lives.
const schemaKey = "schema"

// Store loads schema documents from the per-keyspace meta column family.
type Store struct {
	exec   core.Executor
	logger *zap.Logger
}

// NewStore creates a schema store backed by the given executor.
func NewStore(exec core.Executor, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		exec:   exec,
		logger: logger.With(zap.String("component", "schema-store")),
	}
}

// Load reads and enriches the schema document for a keyspace. Returns
// core.ErrSchemaNotFound when the meta table holds no schema row.
func (s *Store) Load(ctx context.Context, keyspace string) (*core.Schema, error) {
	stmt := core.Statement{
		Query:  "SELECT " + cql.QuoteID("value") + " FROM " + cql.Qualified(keyspace, "meta") + " WHERE " + cql.QuoteID("key") + " = ?",
		Params: []interface{}{schemaKey},
	}
	rows, err := s.exec.Execute(ctx, stmt, core.One)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema for %s: %w", keyspace, err)
	}
	if len(rows) == 0 {
		return nil, core.ErrSchemaNotFound
	}
	raw, ok := rows[0]["value"].(string)
	if !ok {
		return nil, core.Schemaf("schema document for %s is not text", keyspace)
	}
	sch, err := Parse([]byte(raw))
	if err != nil {
		return nil, err
	}
	s.logger.Debug("schema loaded", zap.String("keyspace", keyspace))
	return sch, nil
}

// Parse unmarshals a schema document and enriches it.
func Parse(doc []byte) (*core.Schema, error) {
	var sch core.Schema
	if err := json.Unmarshal(doc, &sch); err != nil {
		return nil, core.Schemaf("malformed schema document: %v", err)
	}
	if err := Enrich(&sch); err != nil {
		return nil, err
	}
	return &sch, nil
}
