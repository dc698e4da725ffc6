package writeback

import (
	"context"
	"errors"
	"sync"

	"github.com/gwicke/storoid/internal/core"
)

var (
	// ErrMemoryQueueClosed is returned when enqueueing to a closed queue.
	ErrMemoryQueueClosed = errors.New("memory queue is closed")

	// ErrMemoryQueueFull is returned when the buffer has no room left.
	ErrMemoryQueueFull = errors.New("memory queue is full")
)

// MemoryQueue is a channel-backed repair queue. Useful for single-instance
// deployments and tests; repairs do not survive a restart.
type MemoryQueue struct {
	mu     sync.RWMutex
	queue  chan *core.RepairOp
	closed bool
}

// NewMemoryQueue creates an in-memory queue holding at most bufferSize
// pending repairs.
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &MemoryQueue{queue: make(chan *core.RepairOp, bufferSize)}
}

// Enqueue adds a repair operation, failing when the buffer is full rather
// than blocking the delete path.
func (q *MemoryQueue) Enqueue(ctx context.Context, op *core.RepairOp) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrMemoryQueueClosed
	}

	select {
	case q.queue <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrMemoryQueueFull
	}
}

// Dequeue drains up to batchSize operations without blocking.
func (q *MemoryQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.RepairOp, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	ops := make([]*core.RepairOp, 0, batchSize)
	for len(ops) < batchSize {
		select {
		case op, ok := <-q.queue:
			if !ok {
				return ops, nil
			}
			ops = append(ops, op)
		case <-ctx.Done():
			return ops, ctx.Err()
		default:
			return ops, nil
		}
	}
	return ops, nil
}

// Size returns the number of buffered operations.
func (q *MemoryQueue) Size() int {
	return len(q.queue)
}

// Close marks the queue closed. Buffered operations remain drainable.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	return nil
}
