// Package client implements the table operations: createTable, dropTable,
// get, put, delete. It owns the data flow from request through schema
// lookup and planning to driver execution and response shaping.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gwicke/storoid/internal/cache"
	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/internal/keyspace"
	"github.com/gwicke/storoid/internal/query"
	"github.com/gwicke/storoid/internal/schema"
	"github.com/gwicke/storoid/internal/writeback"
)

// Client executes logical table operations against one Cassandra cluster.
type Client struct {
	exec    core.Executor
	schemas *cache.SchemaCache
	repairs writeback.Queue
	logger  *zap.Logger
}

// New wires a client from its collaborators. repairs may be nil, in which
// case deferred companion repairs are dropped with a warning.
func New(exec core.Executor, schemas *cache.SchemaCache, repairs writeback.Queue, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		exec:    exec,
		schemas: schemas,
		repairs: repairs,
		logger:  logger.With(zap.String("component", "client")),
	}
}

// CreateTable validates the schema, creates the keyspace and its column
// families, and persists the schema document. The table moves through
// keyspace-created, column-families-created and schema-persisted states; a
// partial failure leaves the keyspace intermediate and is recovered by
// dropping and retrying.
func (c *Client) CreateTable(ctx context.Context, domain string, req *core.SchemaRequest) error {
	if req.Table == "" {
		return core.Schemaf("table name missing")
	}
	sch := &core.Schema{
		Attributes:       req.Attributes,
		Index:            req.Index,
		SecondaryIndexes: req.SecondaryIndexes,
	}
	if err := schema.Enrich(sch); err != nil {
		return err
	}
	ks := keyspace.Encode(domain, req.Table)

	ksStmt, err := query.CreateKeyspace(ks, req.Options)
	if err != nil {
		return err
	}
	if _, err := c.exec.Execute(ctx, ksStmt, core.One); err != nil {
		return fmt.Errorf("failed to create keyspace %s: %w", ks, err)
	}

	stmts := []core.Statement{}
	for _, fam := range []struct {
		name   string
		schema *core.Schema
	}{
		{"data", sch},
		{"meta", query.MetaSchema},
	} {
		stmt, err := query.CreateTable(ks, fam.name, fam.schema)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
	}
	for name, comp := range sch.IndexSchemas {
		stmt, err := query.CreateTable(ks, "i_"+name, comp)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
	}

	// Column families are independent; create them concurrently.
	var wg sync.WaitGroup
	errs := make(chan error, len(stmts))
	for _, stmt := range stmts {
		wg.Add(1)
		go func(stmt core.Statement) {
			defer wg.Done()
			if _, err := c.exec.Execute(ctx, stmt, core.One); err != nil {
				errs <- err
			}
		}(stmt)
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return fmt.Errorf("failed to create column families for %s: %w", ks, err)
	}

	insert, err := query.SchemaInsert(ks, sch)
	if err != nil {
		return err
	}
	if _, err := c.exec.Execute(ctx, insert, core.One); err != nil {
		return fmt.Errorf("failed to persist schema for %s: %w", ks, err)
	}

	c.schemas.Put(ctx, ks, sch)
	c.logger.Info("table created",
		zap.String("domain", domain),
		zap.String("table", req.Table),
		zap.String("keyspace", ks))
	return nil
}

// DropTable drops the physical keyspace and forgets its cached schema.
func (c *Client) DropTable(ctx context.Context, domain, table string) error {
	ks := keyspace.Encode(domain, table)
	if _, err := c.exec.Execute(ctx, query.DropKeyspace(ks), core.One); err != nil {
		return fmt.Errorf("failed to drop keyspace %s: %w", ks, err)
	}
	c.schemas.Invalidate(ctx, ks)
	c.logger.Info("table dropped",
		zap.String("domain", domain),
		zap.String("table", table),
		zap.String("keyspace", ks))
	return nil
}

// Get compiles and executes a read. A missing schema is tolerated: reads
// only need the schema for projection expansion and ordering.
func (c *Client) Get(ctx context.Context, domain string, req *core.ReadRequest) (*core.ReadResponse, error) {
	ks := keyspace.Encode(domain, req.Table)
	sch, err := c.schemas.Get(ctx, ks)
	if err != nil {
		if !errors.Is(err, core.ErrSchemaNotFound) {
			return nil, err
		}
		sch = nil
	}
	stmt, err := query.Read(ks, req, sch)
	if err != nil {
		return nil, err
	}
	rows, err := c.exec.Execute(ctx, stmt, core.ParseConsistency(req.Consistency))
	if err != nil {
		return nil, err
	}
	return &core.ReadResponse{Count: len(rows), Items: rows}, nil
}

// Put compiles a write and fans it out to the primary and every secondary
// index companion. More than one statement is dispatched as a single
// best-effort batch. A failed IF condition is surfaced as a CASError
// carrying the existing row.
func (c *Client) Put(ctx context.Context, domain string, req *core.WriteRequest) (*core.WriteResponse, error) {
	ks := keyspace.Encode(domain, req.Table)
	sch, err := c.schemas.Get(ctx, ks)
	if err != nil {
		return nil, err
	}
	stmts, err := query.PlanPut(ks, req, sch)
	if err != nil {
		return nil, err
	}
	cons := core.ParseConsistency(req.Consistency)

	cas := false
	for _, stmt := range stmts {
		if stmt.CAS {
			cas = true
		}
	}
	switch {
	case len(stmts) == 1 && !cas:
		if _, err := c.exec.Execute(ctx, stmts[0], cons); err != nil {
			return nil, err
		}
	case len(stmts) == 1:
		applied, existing, err := c.exec.ExecuteCAS(ctx, stmts[0], cons)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, &core.CASError{Existing: existing}
		}
	case !cas:
		if err := c.exec.Batch(ctx, stmts, cons); err != nil {
			return nil, err
		}
	default:
		applied, existing, err := c.exec.BatchCAS(ctx, stmts, cons)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, &core.CASError{Existing: existing}
		}
	}
	return &core.WriteResponse{Status: 201}, nil
}

// Delete compiles a delete, tombstoning companions inline where the
// predicate pins their keys and deferring the rest to the repair queue.
func (c *Client) Delete(ctx context.Context, domain string, req *core.DeleteRequest) error {
	ks := keyspace.Encode(domain, req.Table)
	sch, err := c.schemas.Get(ctx, ks)
	if err != nil {
		return err
	}
	stmts, repairs, err := query.PlanDelete(ks, req, sch)
	if err != nil {
		return err
	}
	cons := core.ParseConsistency(req.Consistency)
	if len(stmts) == 1 {
		if _, err := c.exec.Execute(ctx, stmts[0], cons); err != nil {
			return err
		}
	} else {
		if err := c.exec.Batch(ctx, stmts, cons); err != nil {
			return err
		}
	}
	for _, op := range repairs {
		if c.repairs == nil {
			c.logger.Warn("no repair queue, dropping companion repair",
				zap.String("keyspace", op.Keyspace), zap.String("index", op.Index))
			continue
		}
		op.EnqueuedAt = time.Now()
		if err := c.repairs.Enqueue(ctx, op); err != nil {
			return fmt.Errorf("failed to enqueue companion repair: %w", err)
		}
	}
	return nil
}
