package writeback

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gwicke/storoid/internal/cache"
	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/internal/cql"
	"github.com/gwicke/storoid/internal/schema"
	"github.com/gwicke/storoid/internal/tid"
)

// RepairerConfig tunes the reconciliation sweep.
type RepairerConfig struct {
	// Rate caps companion writes per second so the sweep cannot crowd out
	// foreground traffic.
	Rate int

	// BatchSize is how many repair operations to dequeue at once.
	BatchSize int

	// PollInterval is how long to idle when the queue is empty.
	PollInterval time.Duration

	// MaxRetries bounds re-enqueues of a failing repair operation.
	MaxRetries int
}

// DefaultRepairerConfig returns the sweep defaults.
func DefaultRepairerConfig() RepairerConfig {
	return RepairerConfig{
		Rate:         50,
		BatchSize:    16,
		PollInterval: 500 * time.Millisecond,
		MaxRetries:   5,
	}
}

// Repairer drains the repair queue in the background. For each operation it
// resolves the companion rows matching the original delete predicate, marks
// them tombstoned, and advances the partition's __consistentUpTo marker.
type Repairer struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	queue   Queue
	exec    core.Executor
	schemas *cache.SchemaCache
	limiter *rate.Limiter
	cfg     RepairerConfig
	logger  *zap.Logger
}

// NewRepairer creates a repairer; Start launches its goroutine.
func NewRepairer(queue Queue, exec core.Executor, schemas *cache.SchemaCache, cfg RepairerConfig, logger *zap.Logger) *Repairer {
	def := DefaultRepairerConfig()
	if cfg.Rate <= 0 {
		cfg.Rate = def.Rate
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repairer{
		queue:   queue,
		exec:    exec,
		schemas: schemas,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "repairer")),
	}
}

// Start launches the sweep goroutine. Calling Start on a running repairer
// is a no-op.
func (r *Repairer) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx)
	r.logger.Info("repairer started", zap.Int("rate", r.cfg.Rate))
}

// Stop shuts the sweep down and waits for the in-flight operation to
// finish.
func (r *Repairer) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	done := r.doneCh
	r.mu.Unlock()

	<-done
	r.logger.Info("repairer stopped")
}

func (r *Repairer) run(ctx context.Context) {
	defer close(r.doneCh)
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		ops, err := r.queue.Dequeue(ctx, r.cfg.BatchSize)
		if err != nil {
			r.logger.Warn("repair dequeue failed", zap.Error(err))
		}
		if len(ops) == 0 {
			select {
			case <-time.After(r.cfg.PollInterval):
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}
		for _, op := range ops {
			if err := r.repair(ctx, op); err != nil {
				r.retry(ctx, op, err)
			}
		}
	}
}

// repair resolves the companion rows covered by the delete predicate and
// tombstones them one by one under the rate limit.
func (r *Repairer) repair(ctx context.Context, op *core.RepairOp) error {
	s, err := r.schemas.Get(ctx, op.Keyspace)
	if err != nil {
		return err
	}
	comp, ok := s.IndexSchemas[op.Index]
	if !ok {
		r.logger.Warn("dropping repair for unknown index",
			zap.String("keyspace", op.Keyspace), zap.String("index", op.Index))
		return nil
	}

	// Restrict the predicate to scalar equality on companion key columns.
	// The companion partition key must be bound; a sweep without it would
	// need a full scan, which the repairer refuses.
	pred := make(map[string]interface{})
	for k := range comp.IndexAttributes {
		if v, ok := op.Attributes[k]; ok {
			if _, isOp := v.(map[string]interface{}); !isOp {
				pred[k] = v
			}
		}
	}
	if _, ok := pred[comp.Index.Hash]; !ok {
		r.logger.Warn("dropping unresolvable repair",
			zap.String("keyspace", op.Keyspace), zap.String("index", op.Index))
		return nil
	}

	where, params, err := cql.Where(pred)
	if err != nil {
		return err
	}
	family := "i_" + op.Index
	sel := core.Statement{
		Query:  "SELECT * FROM " + cql.Qualified(op.Keyspace, family) + " WHERE " + where,
		Params: params,
	}
	rows, err := r.exec.Execute(ctx, sel, core.One)
	if err != nil {
		return err
	}

	upTo := tid.New()
	for _, row := range rows {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		key := make(map[string]interface{}, len(comp.IndexAttributes))
		for k := range comp.IndexAttributes {
			key[k] = row[k]
		}
		guard, keyParams, err := cql.Where(key)
		if err != nil {
			return err
		}
		upd := core.Statement{
			Query: "UPDATE " + cql.Qualified(op.Keyspace, family) +
				" SET " + cql.QuoteID(schema.Tombstone) + " = ?, " + cql.QuoteID(schema.ConsistentUpTo) + " = ?" +
				" WHERE " + guard,
			Params: append([]interface{}{true, upTo}, keyParams...),
		}
		if _, err := r.exec.Execute(ctx, upd, core.One); err != nil {
			return err
		}
	}
	r.logger.Debug("repair applied",
		zap.String("keyspace", op.Keyspace),
		zap.String("index", op.Index),
		zap.Int("rows", len(rows)))
	return nil
}

func (r *Repairer) retry(ctx context.Context, op *core.RepairOp, cause error) {
	op.RetryCount++
	if op.RetryCount > r.cfg.MaxRetries {
		r.logger.Error("giving up on repair",
			zap.String("keyspace", op.Keyspace),
			zap.String("index", op.Index),
			zap.Error(cause))
		return
	}
	if err := r.queue.Enqueue(ctx, op); err != nil {
		r.logger.Error("failed to re-enqueue repair",
			zap.String("keyspace", op.Keyspace), zap.Error(err))
	}
}
