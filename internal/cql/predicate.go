// Package cql compiles declarative request fragments into parameterised CQL
// text. User values never appear in statement text; they are always bound
// through placeholders.
package cql

import (
	"sort"
	"strings"

	"github.com/gwicke/storoid/internal/core"
)

// comparison operators accepted in predicate objects, keyed lowercase.
var operators = map[string]string{
	"eq": "=",
	"lt": "<",
	"gt": ">",
	"le": "<=",
	"ge": ">=",
	"ne": "!=",
}

// Where compiles an attribute-map predicate into a WHERE fragment and its
// bound parameters, joined with AND. A predicate value is either a scalar
// (equality) or a single-key object naming a comparison operator. Attribute
// names are processed in sorted order so the output is stable.
func Where(pred map[string]interface{}) (string, []interface{}, error) {
	names := make([]string, 0, len(pred))
	for name := range pred {
		names = append(names, name)
	}
	sort.Strings(names)

	var frags []string
	var params []interface{}
	for _, name := range names {
		frag, ps, err := condition(name, pred[name])
		if err != nil {
			return "", nil, err
		}
		frags = append(frags, frag)
		params = append(params, ps...)
	}
	return strings.Join(frags, " AND "), params, nil
}

func condition(name string, value interface{}) (string, []interface{}, error) {
	op, ok := value.(map[string]interface{})
	if !ok {
		return QuoteID(name) + " = ?", []interface{}{value}, nil
	}
	if len(op) != 1 {
		return "", nil, core.Schemaf("predicate for %q must have exactly one operator", name)
	}
	for key, operand := range op {
		switch strings.ToLower(key) {
		case "between":
			bounds, ok := operand.([]interface{})
			if !ok || len(bounds) != 2 {
				return "", nil, core.Schemaf("between predicate for %q requires a two-element value", name)
			}
			frag := QuoteID(name) + " >= ? AND " + QuoteID(name) + " <= ?"
			return frag, []interface{}{bounds[0], bounds[1]}, nil
		default:
			sym, ok := operators[strings.ToLower(key)]
			if !ok {
				return "", nil, core.Schemaf("unknown operator %q for %q", key, name)
			}
			return QuoteID(name) + " " + sym + " ?", []interface{}{operand}, nil
		}
	}
	// unreachable: len(op) == 1 guarantees one iteration
	return "", nil, core.Schemaf("empty predicate for %q", name)
}

// QuoteID wraps an identifier in double quotes, escaping embedded quotes.
// Quoting keeps attribute names case-exact and out of the reserved-word
// minefield.
func QuoteID(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Qualified returns the fully qualified, quoted column family reference.
func Qualified(keyspace, family string) string {
	return QuoteID(keyspace) + "." + QuoteID(family)
}
