package storoid

import (
	"encoding/json"

	"github.com/gwicke/storoid/internal/core"
)

// StringOrList unmarshals from either a single JSON string or an array of
// strings. Schema documents routinely use the single-string form for
// one-element lists.
type StringOrList []string

func (l *StringOrList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringOrList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = StringOrList(many)
	return nil
}

// IndexDef describes a primary key layout or secondary index descriptor.
type IndexDef struct {
	// Hash names the partition column.
	Hash string `json:"hash"`

	// Range names the clustering columns, in order.
	Range StringOrList `json:"range,omitempty"`

	// Order gives per-clustering-column sort direction ("asc" or "desc").
	Order StringOrList `json:"order,omitempty"`

	// Static marks partition-scoped columns.
	Static StringOrList `json:"static,omitempty"`

	// Proj lists extra attributes projected into an index companion.
	Proj StringOrList `json:"proj,omitempty"`
}

// SchemaOptions carries keyspace-level knobs for table creation.
type SchemaOptions struct {
	StorageClass      string `json:"storageClass,omitempty"`
	ReplicationFactor int    `json:"replicationFactor,omitempty"`
}

// SchemaRequest is the createTable request: the logical schema document
// plus the table name and keyspace options.
type SchemaRequest struct {
	Table            string               `json:"table"`
	Options          SchemaOptions        `json:"options,omitempty"`
	Attributes       map[string]string    `json:"attributes"`
	Index            IndexDef             `json:"index"`
	SecondaryIndexes map[string]*IndexDef `json:"secondaryIndexes,omitempty"`
}

// ReadRequest describes a get operation.
type ReadRequest struct {
	Table       string                 `json:"table"`
	Index       string                 `json:"index,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	Proj        interface{}            `json:"proj,omitempty"`
	Order       string                 `json:"order,omitempty"`
	Limit       interface{}            `json:"limit,omitempty"`
	Distinct    bool                   `json:"distinct,omitempty"`
	Consistency string                 `json:"consistency,omitempty"`
}

// ReadResponse is the shaped result of a get operation.
type ReadResponse struct {
	Count int                      `json:"count"`
	Items []map[string]interface{} `json:"items"`
}

// WriteRequest describes a put operation. If may be the literal string
// "not exists" or a predicate map for compare-and-set.
type WriteRequest struct {
	Table       string                 `json:"table"`
	Attributes  map[string]interface{} `json:"attributes"`
	If          interface{}            `json:"if,omitempty"`
	Consistency string                 `json:"consistency,omitempty"`
}

// WriteResponse is the shaped result of a put operation.
type WriteResponse struct {
	Status int `json:"status"`
}

// DeleteRequest describes a delete operation scoped by predicate.
type DeleteRequest struct {
	Table       string                 `json:"table"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	Consistency string                 `json:"consistency,omitempty"`
}

func (d *IndexDef) toCore() *core.Index {
	if d == nil {
		return nil
	}
	return &core.Index{
		Hash:   d.Hash,
		Range:  core.StringList(d.Range),
		Order:  core.StringList(d.Order),
		Static: core.StringList(d.Static),
		Proj:   core.StringList(d.Proj),
	}
}

func (r *SchemaRequest) toCore() *core.SchemaRequest {
	out := &core.SchemaRequest{
		Table: r.Table,
		Options: core.SchemaOptions{
			StorageClass:      r.Options.StorageClass,
			ReplicationFactor: r.Options.ReplicationFactor,
		},
	}
	out.Attributes = r.Attributes
	out.Index = *r.Index.toCore()
	if r.SecondaryIndexes != nil {
		out.SecondaryIndexes = make(map[string]*core.Index, len(r.SecondaryIndexes))
		for name, def := range r.SecondaryIndexes {
			out.SecondaryIndexes[name] = def.toCore()
		}
	}
	return out
}

func (r *ReadRequest) toCore() *core.ReadRequest {
	return &core.ReadRequest{
		Table:       r.Table,
		Index:       r.Index,
		Attributes:  r.Attributes,
		Proj:        r.Proj,
		Order:       r.Order,
		Limit:       r.Limit,
		Distinct:    r.Distinct,
		Consistency: r.Consistency,
	}
}

func (r *WriteRequest) toCore() *core.WriteRequest {
	return &core.WriteRequest{
		Table:       r.Table,
		Attributes:  r.Attributes,
		If:          r.If,
		Consistency: r.Consistency,
	}
}

func (r *DeleteRequest) toCore() *core.DeleteRequest {
	return &core.DeleteRequest{
		Table:       r.Table,
		Attributes:  r.Attributes,
		Consistency: r.Consistency,
	}
}
