package cql

import (
	"strings"

	"github.com/gwicke/storoid/internal/core"
)

// physicalTypes maps each logical scalar type to its physical column type.
// string and json are stored as text; json values are encoded by the write
// planner before binding.
var physicalTypes = map[string]string{
	"blob":      "blob",
	"decimal":   "decimal",
	"double":    "double",
	"boolean":   "boolean",
	"varint":    "varint",
	"string":    "text",
	"timeuuid":  "timeuuid",
	"uuid":      "uuid",
	"timestamp": "timestamp",
	"json":      "text",
}

// PhysicalType maps a logical attribute type to its physical column type,
// including set<...> variants. Unknown types are a schema error.
func PhysicalType(logical string) (string, error) {
	if elem, ok := strings.CutPrefix(logical, "set<"); ok {
		elem, ok = strings.CutSuffix(elem, ">")
		if ok {
			phys, ok := physicalTypes[elem]
			if !ok {
				return "", core.Schemaf("unknown logical type %q", logical)
			}
			return "set<" + phys + ">", nil
		}
	}
	phys, ok := physicalTypes[logical]
	if !ok {
		return "", core.Schemaf("unknown logical type %q", logical)
	}
	return phys, nil
}
