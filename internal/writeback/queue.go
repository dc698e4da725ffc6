// Package writeback defers companion-index maintenance that could not be
// applied inline. Deletes whose companion row keys are not derivable from
// the delete predicate are enqueued as repair operations; a rate-limited
// repairer resolves the affected companion rows and tombstones them.
package writeback

import (
	"context"

	"github.com/gwicke/storoid/internal/core"
)

// Queue transports repair operations between the delete path and the
// repairer. Implementations: an in-memory channel queue and Kafka.
type Queue interface {
	// Enqueue adds a repair operation to the queue.
	Enqueue(ctx context.Context, op *core.RepairOp) error

	// Dequeue retrieves up to batchSize operations. The memory queue returns
	// an empty slice when none are available; the Kafka queue blocks until
	// at least one operation arrives or ctx ends.
	Dequeue(ctx context.Context, batchSize int) ([]*core.RepairOp, error)

	// Size returns the approximate number of queued operations.
	Size() int

	// Close releases queue resources.
	Close() error
}
