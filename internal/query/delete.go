package query

import (
	"sort"
	"strings"

	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/internal/cql"
	"github.com/gwicke/storoid/internal/schema"
)

// PlanDelete compiles a delete request into the primary DELETE plus, for
// each secondary index, either an inline companion tombstone (when the
// predicate pins every companion key column to a scalar value) or a
// deferred RepairOp for the reconciliation sweep. Companion rows are never
// physically deleted here; they are tombstoned and swept later.
func PlanDelete(keyspace string, req *core.DeleteRequest, s *core.Schema) ([]core.Statement, []*core.RepairOp, error) {
	q := "DELETE FROM " + cql.Qualified(keyspace, "data")
	var params []interface{}
	if len(req.Attributes) > 0 {
		where, ps, err := cql.Where(req.Attributes)
		if err != nil {
			return nil, nil, err
		}
		q += " WHERE " + where
		params = ps
	}
	stmts := []core.Statement{{Query: q, Params: params}}

	var repairs []*core.RepairOp
	for _, name := range sortedIndexNames(s) {
		comp := s.IndexSchemas[name]
		stmt, ok, err := tombstone(keyspace, name, comp, req.Attributes)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			stmts = append(stmts, stmt)
			continue
		}
		repairs = append(repairs, &core.RepairOp{
			Keyspace:   keyspace,
			Index:      name,
			Attributes: req.Attributes,
		})
	}
	return stmts, repairs, nil
}

// tombstone builds the companion tombstone update when every companion key
// column is bound by a scalar equality in the delete predicate. Operator
// predicates or missing columns (typically the implicit _tid) leave the row
// set unresolvable here, so the caller falls back to a repair op.
func tombstone(keyspace, index string, comp *core.Schema, pred map[string]interface{}) (core.Statement, bool, error) {
	keys := make([]string, 0, len(comp.IndexAttributes))
	for k := range comp.IndexAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := []interface{}{true}
	wheres := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := pred[k]
		if !ok {
			return core.Statement{}, false, nil
		}
		if _, isOp := v.(map[string]interface{}); isOp {
			return core.Statement{}, false, nil
		}
		wheres = append(wheres, cql.QuoteID(k)+" = ?")
		params = append(params, v)
	}

	q := "UPDATE " + cql.Qualified(keyspace, "i_"+index) +
		" SET " + cql.QuoteID(schema.Tombstone) + " = ? WHERE " + strings.Join(wheres, " AND ")
	return core.Statement{Query: q, Params: params}, true, nil
}
