package writeback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/gwicke/storoid/internal/core"
)

// ErrKafkaQueueClosed is returned when enqueueing to a closed Kafka queue.
var ErrKafkaQueueClosed = errors.New("kafka queue is closed")

// KafkaQueueConfig holds Kafka transport settings for the repair queue.
type KafkaQueueConfig struct {
	Brokers      []string
	Topic        string
	GroupID      string
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	MinBytes     int
	MaxBytes     int
	MaxWait      time.Duration
}

// KafkaQueue is a Kafka-backed repair queue. Repairs survive restarts and
// can be drained by a separate consumer group of repairers.
type KafkaQueue struct {
	mu     sync.RWMutex
	writer *kafka.Writer
	reader *kafka.Reader
	logger *zap.Logger
	closed bool
}

// NewKafkaQueue creates a Kafka-backed repair queue.
func NewKafkaQueue(cfg KafkaQueueConfig, logger *zap.Logger) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "storoid-repair"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
	})
	return &KafkaQueue{
		writer: writer,
		reader: reader,
		logger: logger.With(zap.String("component", "repair-queue-kafka")),
	}, nil
}

// Enqueue publishes the repair operation, keyed by keyspace so repairs for
// one table stay ordered within a partition.
func (q *KafkaQueue) Enqueue(ctx context.Context, op *core.RepairOp) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrKafkaQueueClosed
	}

	value, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to serialize repair op: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(op.Keyspace),
		Value: value,
	}
	if err := q.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue repair op: %w", err)
	}
	return nil
}

// Dequeue consumes up to batchSize operations. The first read blocks until
// a message arrives or ctx expires; subsequent reads use a short deadline
// so a partial batch is returned promptly.
func (q *KafkaQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.RepairOp, error) {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return nil, ErrKafkaQueueClosed
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	ops := make([]*core.RepairOp, 0, batchSize)
	for len(ops) < batchSize {
		readCtx := ctx
		var cancel context.CancelFunc
		if len(ops) > 0 {
			readCtx, cancel = context.WithTimeout(ctx, 100*time.Millisecond)
		}
		msg, err := q.reader.ReadMessage(readCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if len(ops) > 0 && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
				return ops, nil
			}
			return ops, err
		}
		var op core.RepairOp
		if err := json.Unmarshal(msg.Value, &op); err != nil {
			q.logger.Warn("dropping malformed repair message", zap.Error(err))
			continue
		}
		ops = append(ops, &op)
	}
	return ops, nil
}

// Size is unknown for Kafka; consumer lag lives broker-side.
func (q *KafkaQueue) Size() int {
	return -1
}

// Close shuts down the writer and reader.
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	werr := q.writer.Close()
	rerr := q.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
