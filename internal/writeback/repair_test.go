package writeback

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gwicke/storoid/internal/cache"
	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/internal/schema"
)

// fakeExecutor returns canned rows for SELECTs and records everything else.
type fakeExecutor struct {
	mu       sync.Mutex
	selected []core.Statement
	updated  []core.Statement
	rows     []core.Row
}

func (f *fakeExecutor) Execute(_ context.Context, stmt core.Statement, _ core.Consistency) ([]core.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.HasPrefix(stmt.Query, "SELECT") {
		f.selected = append(f.selected, stmt)
		return f.rows, nil
	}
	f.updated = append(f.updated, stmt)
	return nil, nil
}

func (f *fakeExecutor) ExecuteCAS(context.Context, core.Statement, core.Consistency) (bool, core.Row, error) {
	return true, nil, nil
}

func (f *fakeExecutor) Batch(context.Context, []core.Statement, core.Consistency) error {
	return nil
}

func (f *fakeExecutor) BatchCAS(context.Context, []core.Statement, core.Consistency) (bool, core.Row, error) {
	return true, nil, nil
}

func (f *fakeExecutor) Close() error { return nil }

func repairSchema(t *testing.T) *core.Schema {
	t.Helper()
	s := &core.Schema{
		Attributes: map[string]string{
			"key":   "string",
			"rev":   "varint",
			"title": "string",
		},
		Index: core.Index{Hash: "key", Range: core.StringList{"rev"}},
		SecondaryIndexes: map[string]*core.Index{
			"by_title": {Hash: "title"},
		},
	}
	if err := schema.Enrich(s); err != nil {
		t.Fatalf("failed to enrich: %v", err)
	}
	return s
}

func newTestRepairer(t *testing.T, exec *fakeExecutor) (*Repairer, *MemoryQueue) {
	t.Helper()
	s := repairSchema(t)
	schemas := cache.New(func(context.Context, string) (*core.Schema, error) {
		return s, nil
	}, nil, nil)
	q := NewMemoryQueue(16)
	r := NewRepairer(q, exec, schemas, RepairerConfig{
		Rate:         1000,
		BatchSize:    4,
		PollInterval: 5 * time.Millisecond,
		MaxRetries:   2,
	}, nil)
	return r, q
}

func TestRepairTombstonesMatchingRows(t *testing.T) {
	exec := &fakeExecutor{rows: []core.Row{
		{"title": "Hello", "key": "foo", "rev": 1, "_tid": "t1"},
		{"title": "Hello", "key": "foo", "rev": 2, "_tid": "t2"},
	}}
	r, _ := newTestRepairer(t, exec)

	err := r.repair(context.Background(), &core.RepairOp{
		Keyspace:   "ks",
		Index:      "by_title",
		Attributes: map[string]interface{}{"title": "Hello", "key": "foo"},
	})
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}

	if len(exec.selected) != 1 {
		t.Fatalf("got %d selects, want 1", len(exec.selected))
	}
	if !strings.Contains(exec.selected[0].Query, `"ks"."i_by_title"`) {
		t.Errorf("select targets %q", exec.selected[0].Query)
	}
	if len(exec.updated) != 2 {
		t.Fatalf("got %d updates, want 2", len(exec.updated))
	}
	for _, upd := range exec.updated {
		if !strings.Contains(upd.Query, `"__tombstone" = ?`) ||
			!strings.Contains(upd.Query, `"__consistentUpTo" = ?`) {
			t.Errorf("update = %q", upd.Query)
		}
		if upd.Params[0] != true {
			t.Errorf("tombstone param = %v", upd.Params[0])
		}
	}
}

func TestRepairDropsUnresolvableOp(t *testing.T) {
	exec := &fakeExecutor{}
	r, _ := newTestRepairer(t, exec)

	// No companion partition key in the predicate: the sweep refuses to
	// scan and drops the op.
	err := r.repair(context.Background(), &core.RepairOp{
		Keyspace:   "ks",
		Index:      "by_title",
		Attributes: map[string]interface{}{"key": "foo"},
	})
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if len(exec.selected) != 0 || len(exec.updated) != 0 {
		t.Errorf("unexpected statements: %v %v", exec.selected, exec.updated)
	}
}

func TestRepairerDrainsQueue(t *testing.T) {
	exec := &fakeExecutor{rows: []core.Row{
		{"title": "Hello", "key": "foo", "rev": 1, "_tid": "t1"},
	}}
	r, q := newTestRepairer(t, exec)

	ctx := context.Background()
	if err := q.Enqueue(ctx, &core.RepairOp{
		Keyspace:   "ks",
		Index:      "by_title",
		Attributes: map[string]interface{}{"title": "Hello"},
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	r.Start(ctx)
	defer r.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec.mu.Lock()
		n := len(exec.updated)
		exec.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("repairer did not drain the queue in time")
}
