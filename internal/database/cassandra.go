// Package database implements the executor contract on gocql.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/gwicke/storoid/internal/core"
)

// Config holds Cassandra session settings.
type Config struct {
	Hosts    []string
	Port     int
	Timeout  time.Duration
	Username string
	Password string

	// Retries and RetryInterval govern session creation, not statement
	// execution. A fresh cluster can take a few seconds to accept sessions.
	Retries       int
	RetryInterval time.Duration
}

// Cassandra is a gocql-backed executor. Statements execute prepared; gocql
// keeps a prepared-statement cache keyed by query text.
type Cassandra struct {
	session *gocql.Session
	logger  *zap.Logger
}

// New creates a session against the configured cluster, retrying session
// creation when the cluster is not ready yet.
func New(cfg Config, logger *zap.Logger) (*Cassandra, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("at least one cassandra host is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port != 0 {
		cluster.Port = cfg.Port
	}
	if cfg.Timeout != 0 {
		cluster.Timeout = cfg.Timeout
	}
	cluster.Consistency = gocql.One
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	interval := cfg.RetryInterval
	if interval == 0 {
		interval = 2 * time.Second
	}
	var sess *gocql.Session
	var err error
	for attempt := 0; ; attempt++ {
		sess, err = cluster.CreateSession()
		if err == nil {
			break
		}
		if attempt >= cfg.Retries {
			return nil, fmt.Errorf("failed to create cassandra session: %w", err)
		}
		logger.Warn("cassandra session creation failed, retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))
		time.Sleep(interval)
	}
	return &Cassandra{
		session: sess,
		logger:  logger.With(zap.String("component", "cassandra")),
	}, nil
}

func toGocql(c core.Consistency) gocql.Consistency {
	switch c {
	case core.LocalQuorum:
		return gocql.LocalQuorum
	case core.All:
		return gocql.All
	default:
		return gocql.One
	}
}

// Execute runs a single statement and returns its rows as plain column
// maps; driver metadata never reaches the caller.
func (c *Cassandra) Execute(ctx context.Context, stmt core.Statement, cons core.Consistency) ([]core.Row, error) {
	c.logger.Debug("execute", zap.String("query", stmt.Query), zap.Stringer("consistency", cons))
	q := c.session.Query(stmt.Query, stmt.Params...).
		WithContext(ctx).
		Consistency(toGocql(cons))
	iter := q.Iter()
	rows, err := iter.SliceMap()
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExecuteCAS runs a conditional statement and reports the applied outcome,
// returning the existing row when the condition did not hold.
func (c *Cassandra) ExecuteCAS(ctx context.Context, stmt core.Statement, cons core.Consistency) (bool, core.Row, error) {
	c.logger.Debug("execute cas", zap.String("query", stmt.Query), zap.Stringer("consistency", cons))
	q := c.session.Query(stmt.Query, stmt.Params...).
		WithContext(ctx).
		Consistency(toGocql(cons))
	existing := make(core.Row)
	applied, err := q.MapScanCAS(existing)
	if err != nil {
		return false, nil, err
	}
	return applied, existing, nil
}

// Batch dispatches the statements as one logged batch.
func (c *Cassandra) Batch(ctx context.Context, stmts []core.Statement, cons core.Consistency) error {
	b := c.newBatch(ctx, stmts, cons)
	return c.session.ExecuteBatch(b)
}

// BatchCAS dispatches a batch containing conditional statements and reports
// the applied outcome.
func (c *Cassandra) BatchCAS(ctx context.Context, stmts []core.Statement, cons core.Consistency) (bool, core.Row, error) {
	b := c.newBatch(ctx, stmts, cons)
	existing := make(core.Row)
	applied, iter, err := c.session.MapExecuteBatchCAS(b, existing)
	if iter != nil {
		if cerr := iter.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return false, nil, err
	}
	return applied, existing, nil
}

func (c *Cassandra) newBatch(ctx context.Context, stmts []core.Statement, cons core.Consistency) *gocql.Batch {
	b := c.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Cons = toGocql(cons)
	for _, stmt := range stmts {
		b.Query(stmt.Query, stmt.Params...)
	}
	return b
}

// Close releases the session.
func (c *Cassandra) Close() error {
	c.session.Close()
	return nil
}
