package core

import (
	"encoding/json"
	"time"
)

// Schema is the logical schema document for one table. It is persisted as
// JSON in the table's meta column family under the key "schema" and parsed
// back on first use.
type Schema struct {
	// Attributes maps attribute names to logical types. Logical types are a
	// closed enumeration (blob, decimal, double, boolean, varint, string,
	// timeuuid, uuid, timestamp, json, plus set<...> variants of each).
	Attributes map[string]string `json:"attributes"`

	// Index describes the primary key: partition column, clustering columns,
	// per-column sort order and static columns.
	Index Index `json:"index"`

	// SecondaryIndexes maps index names to index descriptors. Each descriptor
	// is materialised as a companion column family named i_<name>.
	SecondaryIndexes map[string]*Index `json:"secondaryIndexes,omitempty"`

	// IndexAttributes is the set of attribute names that together identify a
	// row (partition plus clustering columns). Computed by the schema
	// manager, never serialized.
	IndexAttributes map[string]bool `json:"-"`

	// IndexSchemas holds the fully synthesized companion schema for each
	// secondary index. Computed by the schema manager, never serialized.
	IndexSchemas map[string]*Schema `json:"-"`
}

// Index describes a primary key layout or a secondary index descriptor.
type Index struct {
	// Hash names the partition column.
	Hash string `json:"hash"`

	// Range names the clustering columns, in order.
	Range StringList `json:"range,omitempty"`

	// Order gives per-clustering-column sort direction ("asc" or "desc").
	Order StringList `json:"order,omitempty"`

	// Static marks partition-scoped columns.
	Static StringList `json:"static,omitempty"`

	// Proj lists extra attributes projected into an index companion.
	// Only meaningful on secondary index descriptors.
	Proj StringList `json:"proj,omitempty"`
}

// StringList unmarshals from either a single JSON string or an array of
// strings. Schema documents routinely use the single-string form for
// one-element lists.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = StringList(many)
	return nil
}

// Contains reports whether the list holds name.
func (l StringList) Contains(name string) bool {
	for _, n := range l {
		if n == name {
			return true
		}
	}
	return false
}

// SchemaOptions carries keyspace-level knobs for table creation.
type SchemaOptions struct {
	// StorageClass selects the replication strategy class.
	// Defaults to SimpleStrategy.
	StorageClass string `json:"storageClass,omitempty"`

	// ReplicationFactor is the keyspace replication factor. Defaults to 3.
	ReplicationFactor int `json:"replicationFactor,omitempty"`
}

// SchemaRequest is the createTable request body: the logical schema document
// plus the table name and keyspace options.
type SchemaRequest struct {
	Table   string        `json:"table"`
	Options SchemaOptions `json:"options,omitempty"`
	Schema
}

// ReadRequest describes a get operation. Proj and Limit are loosely typed
// because requests arrive as JSON; the read planner coerces or drops them.
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
	Count int   `json:"count"`
	Items []Row `json:"items"`
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

// RepairOp is a deferred companion-index repair: a delete whose companion
// row keys could not be derived from the delete predicate. The repairer
// resolves matching companion rows and tombstones them.
type RepairOp struct {
	// Keyspace is the physical keyspace holding the companion.
	Keyspace string `json:"keyspace"`

	// Index is the secondary index name (the companion is i_<Index>).
	Index string `json:"index"`

	// Attributes is the original delete predicate.
	Attributes map[string]interface{} `json:"attributes"`

	// EnqueuedAt is when the repair was first scheduled.
	EnqueuedAt time.Time `json:"enqueuedAt"`

	// RetryCount tracks how many times this repair has been retried.
	RetryCount int `json:"retryCount"`
}
