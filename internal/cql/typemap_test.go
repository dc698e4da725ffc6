package cql

import (
	"errors"
	"testing"

	"github.com/gwicke/storoid/internal/core"
)

func TestPhysicalType(t *testing.T) {
	tests := []struct {
		logical string
		want    string
	}{
		{"blob", "blob"},
		{"decimal", "decimal"},
		{"double", "double"},
		{"boolean", "boolean"},
		{"varint", "varint"},
		{"string", "text"},
		{"timeuuid", "timeuuid"},
		{"uuid", "uuid"},
		{"timestamp", "timestamp"},
		{"json", "text"},
		{"set<string>", "set<text>"},
		{"set<json>", "set<text>"},
		{"set<blob>", "set<blob>"},
		{"set<timeuuid>", "set<timeuuid>"},
	}
	for _, tt := range tests {
		got, err := PhysicalType(tt.logical)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.logical, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.logical, got, tt.want)
		}
	}
}

func TestPhysicalTypeUnknown(t *testing.T) {
	for _, logical := range []string{"int", "text", "set<int>", "map<string,string>", "set<", ""} {
		_, err := PhysicalType(logical)
		var schemaErr *core.SchemaError
		if !errors.As(err, &schemaErr) {
			t.Errorf("%s: expected SchemaError, got %v", logical, err)
		}
	}
}
