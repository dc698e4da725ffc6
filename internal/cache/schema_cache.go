// Package cache holds parsed schemas per keyspace. Schemas are immutable
// once created, so entries are write-once: they are primed by createTable,
// filled on first use, and removed only by dropTable.
package cache

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/internal/schema"
)

// Loader fetches and enriches the schema for a keyspace, typically from the
// keyspace's meta column family.
type Loader func(ctx context.Context, keyspace string) (*core.Schema, error)

type call struct {
	done   chan struct{}
	schema *core.Schema
	err    error
}

// SchemaCache is an in-memory keyspace → schema map with single-flight
// loading: concurrent misses for the same keyspace share one load.
// An optional Redis layer is consulted between the local map and the
// loader so schema reads are shared across instances.
type SchemaCache struct {
	mu       sync.Mutex
	schemas  map[string]*core.Schema
	inflight map[string]*call

	loader Loader
	remote *RedisCache
	logger *zap.Logger
}

// New creates a schema cache. remote may be nil.
func New(loader Loader, remote *RedisCache, logger *zap.Logger) *SchemaCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaCache{
		schemas:  make(map[string]*core.Schema),
		inflight: make(map[string]*call),
		loader:   loader,
		remote:   remote,
		logger:   logger.With(zap.String("component", "schema-cache")),
	}
}

// Get returns the cached schema for a keyspace, loading it on first use.
// Concurrent callers that miss coalesce behind a single load; every caller
// observes the same result.
func (c *SchemaCache) Get(ctx context.Context, keyspace string) (*core.Schema, error) {
	c.mu.Lock()
	if s, ok := c.schemas[keyspace]; ok {
		c.mu.Unlock()
		return s, nil
	}
	if cl, ok := c.inflight[keyspace]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.schema, cl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[keyspace] = cl
	c.mu.Unlock()

	cl.schema, cl.err = c.load(ctx, keyspace)

	c.mu.Lock()
	if cl.err == nil {
		c.schemas[keyspace] = cl.schema
	}
	delete(c.inflight, keyspace)
	c.mu.Unlock()
	close(cl.done)
	return cl.schema, cl.err
}

// Put primes the cache, typically right after createTable persists the
// schema document.
func (c *SchemaCache) Put(ctx context.Context, keyspace string, s *core.Schema) {
	c.mu.Lock()
	c.schemas[keyspace] = s
	c.mu.Unlock()
	if c.remote != nil {
		if doc, err := json.Marshal(s); err == nil {
			if err := c.remote.Set(ctx, keyspace, doc); err != nil {
				c.logger.Warn("remote schema cache set failed",
					zap.String("keyspace", keyspace), zap.Error(err))
			}
		}
	}
}

// Invalidate removes a keyspace's entry, used by dropTable.
func (c *SchemaCache) Invalidate(ctx context.Context, keyspace string) {
	c.mu.Lock()
	delete(c.schemas, keyspace)
	c.mu.Unlock()
	if c.remote != nil {
		if err := c.remote.Delete(ctx, keyspace); err != nil {
			c.logger.Warn("remote schema cache delete failed",
				zap.String("keyspace", keyspace), zap.Error(err))
		}
	}
}

func (c *SchemaCache) load(ctx context.Context, keyspace string) (*core.Schema, error) {
	if c.remote != nil {
		doc, err := c.remote.Get(ctx, keyspace)
		if err != nil {
			c.logger.Warn("remote schema cache get failed",
				zap.String("keyspace", keyspace), zap.Error(err))
		} else if doc != nil {
			s, err := schema.Parse(doc)
			if err == nil {
				return s, nil
			}
			c.logger.Warn("remote schema cache entry malformed",
				zap.String("keyspace", keyspace), zap.Error(err))
		}
	}

	s, err := c.loader(ctx, keyspace)
	if err != nil {
		return nil, err
	}
	if c.remote != nil {
		if doc, merr := json.Marshal(s); merr == nil {
			if serr := c.remote.Set(ctx, keyspace, doc); serr != nil {
				c.logger.Warn("remote schema cache set failed",
					zap.String("keyspace", keyspace), zap.Error(serr))
			}
		}
	}
	return s, nil
}
