// Package storoid is the public face of the document-oriented storage
// layer: table-like operations over a wide-column clustered database,
// addressed by (reverseDomain, table) and parameterised by JSON-friendly
// request objects.
package storoid

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gwicke/storoid/internal/cache"
	internalclient "github.com/gwicke/storoid/internal/client"
	"github.com/gwicke/storoid/internal/database"
	"github.com/gwicke/storoid/internal/schema"
	"github.com/gwicke/storoid/internal/writeback"
)

// Client is the public interface for table operations.
//
// Typical usage:
//
//	client, _ := storoid.NewClient(storoid.DefaultConfig(), logger)
//	defer client.Close()
//	client.Start(ctx) // background index repair
//
//	client.CreateTable(ctx, "org.wikipedia.en", schemaReq)
//	client.Put(ctx, "org.wikipedia.en", writeReq)
//	res, _ := client.Get(ctx, "org.wikipedia.en", readReq)
type Client interface {
	// CreateTable creates the keyspace, its data/meta column families and
	// one companion per secondary index, then persists the schema document.
	CreateTable(ctx context.Context, reverseDomain string, req *SchemaRequest) error

	// DropTable drops the table's physical keyspace.
	DropTable(ctx context.Context, reverseDomain, table string) error

	// Get executes a read request and returns the shaped rows.
	Get(ctx context.Context, reverseDomain string, req *ReadRequest) (*ReadResponse, error)

	// Put executes a write request, fanning out to secondary index
	// companions as one batch.
	Put(ctx context.Context, reverseDomain string, req *WriteRequest) (*WriteResponse, error)

	// Delete executes a delete request, tombstoning companion rows inline
	// where possible and deferring the rest to the repair queue.
	Delete(ctx context.Context, reverseDomain string, req *DeleteRequest) error

	// Start launches the background index repairer. Non-blocking.
	Start(ctx context.Context) error

	// Stop gracefully stops the background repairer.
	Stop() error

	// Close stops the repairer and releases all connections.
	Close() error
}

type clientImpl struct {
	mu       sync.Mutex
	impl     *internalclient.Client
	db       *database.Cassandra
	remote   *cache.RedisCache
	queue    writeback.Queue
	repairer *writeback.Repairer
	started  bool
	logger   *zap.Logger
}

// NewClient builds a client from the configuration: Cassandra session,
// schema cache (optionally Redis-backed), repair queue and repairer.
// logger may be nil.
func NewClient(cfg *Config, logger *zap.Logger) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.New(database.Config{
		Hosts:         cfg.Cassandra.Hosts,
		Port:          cfg.Cassandra.Port,
		Timeout:       cfg.Cassandra.Timeout,
		Username:      cfg.Cassandra.Username,
		Password:      cfg.Cassandra.Password,
		Retries:       cfg.Cassandra.Retries,
		RetryInterval: cfg.Cassandra.RetryInterval,
	}, logger)
	if err != nil {
		return nil, err
	}

	var remote *cache.RedisCache
	if cfg.SchemaCache.Redis.Enabled {
		remote, err = cache.NewRedisCache(cache.RedisConfig{
			Endpoint:     cfg.SchemaCache.Redis.Endpoint,
			Password:     cfg.SchemaCache.Redis.Password,
			DB:           cfg.SchemaCache.Redis.DB,
			PoolSize:     cfg.SchemaCache.Redis.PoolSize,
			DialTimeout:  cfg.SchemaCache.Redis.DialTimeout,
			ReadTimeout:  cfg.SchemaCache.Redis.ReadTimeout,
			WriteTimeout: cfg.SchemaCache.Redis.WriteTimeout,
			TTL:          cfg.SchemaCache.Redis.TTL,
		}, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	store := schema.NewStore(db, logger)
	schemas := cache.New(store.Load, remote, logger)

	var queue writeback.Queue
	switch cfg.Repair.QueueType {
	case "kafka":
		queue, err = writeback.NewKafkaQueue(writeback.KafkaQueueConfig{
			Brokers:      cfg.Repair.Kafka.Brokers,
			Topic:        cfg.Repair.Kafka.Topic,
			GroupID:      cfg.Repair.Kafka.GroupID,
			BatchSize:    cfg.Repair.Kafka.BatchSize,
			BatchTimeout: cfg.Repair.Kafka.BatchTimeout,
			WriteTimeout: cfg.Repair.Kafka.WriteTimeout,
			MinBytes:     cfg.Repair.Kafka.MinBytes,
			MaxBytes:     cfg.Repair.Kafka.MaxBytes,
			MaxWait:      cfg.Repair.Kafka.MaxWait,
		}, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
	default:
		queue = writeback.NewMemoryQueue(cfg.Repair.BufferSize)
	}

	repairer := writeback.NewRepairer(queue, db, schemas, writeback.RepairerConfig{
		Rate:         cfg.Repair.Rate,
		BatchSize:    cfg.Repair.BatchSize,
		PollInterval: cfg.Repair.PollInterval,
		MaxRetries:   cfg.Repair.MaxRetries,
	}, logger)

	return &clientImpl{
		impl:     internalclient.New(db, schemas, queue, logger),
		db:       db,
		remote:   remote,
		queue:    queue,
		repairer: repairer,
		logger:   logger.With(zap.String("component", "storoid")),
	}, nil
}

func (c *clientImpl) CreateTable(ctx context.Context, reverseDomain string, req *SchemaRequest) error {
	if req == nil {
		return fmt.Errorf("request cannot be nil")
	}
	return c.impl.CreateTable(ctx, reverseDomain, req.toCore())
}

func (c *clientImpl) DropTable(ctx context.Context, reverseDomain, table string) error {
	return c.impl.DropTable(ctx, reverseDomain, table)
}

func (c *clientImpl) Get(ctx context.Context, reverseDomain string, req *ReadRequest) (*ReadResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	res, err := c.impl.Get(ctx, reverseDomain, req.toCore())
	if err != nil {
		return nil, err
	}
	return &ReadResponse{Count: res.Count, Items: res.Items}, nil
}

func (c *clientImpl) Put(ctx context.Context, reverseDomain string, req *WriteRequest) (*WriteResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	res, err := c.impl.Put(ctx, reverseDomain, req.toCore())
	if err != nil {
		return nil, err
	}
	return &WriteResponse{Status: res.Status}, nil
}

func (c *clientImpl) Delete(ctx context.Context, reverseDomain string, req *DeleteRequest) error {
	if req == nil {
		return fmt.Errorf("request cannot be nil")
	}
	return c.impl.Delete(ctx, reverseDomain, req.toCore())
}

func (c *clientImpl) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	c.repairer.Start(ctx)
	c.started = true
	return nil
}

func (c *clientImpl) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.repairer.Stop()
	c.started = false
	return nil
}

func (c *clientImpl) Close() error {
	if err := c.Stop(); err != nil {
		return err
	}
	if err := c.queue.Close(); err != nil {
		c.logger.Warn("failed to close repair queue", zap.Error(err))
	}
	if c.remote != nil {
		if err := c.remote.Close(); err != nil {
			c.logger.Warn("failed to close schema cache", zap.Error(err))
		}
	}
	return c.db.Close()
}
