// Package query compiles request objects into parameterised CQL statements.
// Planners are pure: they never touch the database, and user values are
// always bound through placeholders rather than interpolated into text.
package query

import (
	"sort"
	"strings"

	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/internal/cql"
	"github.com/gwicke/storoid/internal/schema"
)

// Read compiles a get request into a SELECT statement. s may be nil when no
// schema is cached; ordering then falls back to the implicit _tid clustering
// column.
func Read(keyspace string, req *core.ReadRequest, s *core.Schema) (core.Statement, error) {
	family := "data"
	target := s
	if req.Index != "" {
		family = "i_" + req.Index
		if s != nil {
			if comp, ok := s.IndexSchemas[req.Index]; ok {
				target = comp
			}
		}
	}

	order := strings.ToLower(req.Order)
	if order != "asc" && order != "desc" {
		order = ""
	}

	proj, err := projection(req, target, order != "")
	if err != nil {
		return core.Statement{}, err
	}
	if req.Distinct {
		proj = "distinct " + proj
	}

	q := "SELECT " + proj + " FROM " + cql.Qualified(keyspace, family)
	var params []interface{}
	if len(req.Attributes) > 0 {
		where, ps, err := cql.Where(req.Attributes)
		if err != nil {
			return core.Statement{}, err
		}
		q += " WHERE " + where
		params = append(params, ps...)
	}

	if order != "" {
		if col, ok := orderColumn(target); ok {
			q += " ORDER BY " + cql.QuoteID(col) + " " + order
		}
	}

	if n, ok := toLimit(req.Limit); ok {
		q += " LIMIT ?"
		params = append(params, n)
	}
	return core.Statement{Query: q, Params: params}, nil
}

// projection renders the column list. The default is *, but a SELECT with
// ORDER BY and * trips the underlying engine, so when ordering is requested
// without an explicit projection the schema's attribute list is spelled out.
func projection(req *core.ReadRequest, target *core.Schema, ordered bool) (string, error) {
	switch p := req.Proj.(type) {
	case nil:
		if ordered && target != nil {
			names := make([]string, 0, len(target.Attributes))
			for name := range target.Attributes {
				names = append(names, name)
			}
			sort.Strings(names)
			return quoteAll(names), nil
		}
		return "*", nil
	case string:
		return cql.QuoteID(p), nil
	case []string:
		return quoteAll(p), nil
	case []interface{}:
		names := make([]string, 0, len(p))
		for _, v := range p {
			name, ok := v.(string)
			if !ok {
				return "", core.Schemaf("projection entries must be attribute names")
			}
			names = append(names, name)
		}
		return quoteAll(names), nil
	default:
		return "", core.Schemaf("invalid projection")
	}
}

// orderColumn picks the ORDER BY target: the first clustering column, or
// _tid when no schema is available. Ordering is only valid when the table
// has a clustering column, so a schema without one drops the clause.
func orderColumn(target *core.Schema) (string, bool) {
	if target == nil {
		return schema.TID, true
	}
	if len(target.Index.Range) == 0 {
		return "", false
	}
	return target.Index.Range[0], true
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = cql.QuoteID(n)
	}
	return strings.Join(quoted, ",")
}

// toLimit coerces the loosely typed limit. Only numeric limits are honored;
// anything else is dropped.
func toLimit(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n > 0
	case int64:
		return int(n), n > 0
	case float64:
		return int(n), n > 0
	default:
		return 0, false
	}
}
