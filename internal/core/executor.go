package core

import "context"

// Row is a single result row, keyed by column name.
type Row = map[string]interface{}

// Statement is a parameterised wire statement. User values are never
// interpolated into Query; they are bound through Params in placeholder
// order.
type Statement struct {
	Query  string
	Params []interface{}

	// CAS marks a conditional statement (IF ... / IF NOT EXISTS) whose
	// applied outcome must be observed through the CAS execution path.
	CAS bool
}

// Consistency is the tunable consistency level for a single operation.
type Consistency int

const (
	// One is the default consistency level.
	One Consistency = iota
	// LocalQuorum requires a quorum of replicas in the local datacenter.
	LocalQuorum
	// All requires every replica.
	All
)

// ParseConsistency maps the request-level consistency string onto a level.
// Accepted values are "all" and "localQuorum"; anything else (including the
// empty string) maps to One.
func ParseConsistency(s string) Consistency {
	switch s {
	case "all":
		return All
	case "localQuorum":
		return LocalQuorum
	default:
		return One
	}
}

func (c Consistency) String() string {
	switch c {
	case LocalQuorum:
		return "LOCAL_QUORUM"
	case All:
		return "ALL"
	default:
		return "ONE"
	}
}

// Executor is the database driver contract. The core depends only on these
// operations; the gocql implementation lives in internal/database.
//
// Statements are executed prepared: the driver caches prepared statements
// keyed by query text.
type Executor interface {
	// Execute runs a single statement and returns its rows. Rows contain
	// only column values; driver-internal metadata is stripped.
	Execute(ctx context.Context, stmt Statement, cons Consistency) ([]Row, error)

	// ExecuteCAS runs a single conditional statement and reports whether it
	// was applied. When not applied, the returned row holds the existing
	// column values the condition was evaluated against.
	ExecuteCAS(ctx context.Context, stmt Statement, cons Consistency) (bool, Row, error)

	// Batch runs several statements as one best-effort batch.
	Batch(ctx context.Context, stmts []Statement, cons Consistency) error

	// BatchCAS runs a batch containing at least one conditional statement
	// and reports the applied outcome.
	BatchCAS(ctx context.Context, stmts []Statement, cons Consistency) (bool, Row, error)

	// Close releases the underlying session.
	Close() error
}
