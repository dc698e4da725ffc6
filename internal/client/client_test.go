package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/gwicke/storoid/internal/cache"
	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/internal/keyspace"
	"github.com/gwicke/storoid/internal/schema"
	"github.com/gwicke/storoid/internal/writeback"
)

// fakeExecutor records every statement and serves canned responses.
type fakeExecutor struct {
	mu       sync.Mutex
	executed []core.Statement
	batches  [][]core.Statement

	rows       []core.Row
	casApplied bool
	casRow     core.Row
}

func (f *fakeExecutor) Execute(_ context.Context, stmt core.Statement, _ core.Consistency) ([]core.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, stmt)
	return f.rows, nil
}

func (f *fakeExecutor) ExecuteCAS(_ context.Context, stmt core.Statement, _ core.Consistency) (bool, core.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, stmt)
	return f.casApplied, f.casRow, nil
}

func (f *fakeExecutor) Batch(_ context.Context, stmts []core.Statement, _ core.Consistency) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, stmts)
	return nil
}

func (f *fakeExecutor) BatchCAS(_ context.Context, stmts []core.Statement, _ core.Consistency) (bool, core.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, stmts)
	return f.casApplied, f.casRow, nil
}

func (f *fakeExecutor) Close() error { return nil }

func (f *fakeExecutor) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.executed))
	for i, stmt := range f.executed {
		out[i] = stmt.Query
	}
	return out
}

func schemaRequest() *core.SchemaRequest {
	req := &core.SchemaRequest{Table: "pages"}
	req.Attributes = map[string]string{
		"key":   "string",
		"rev":   "varint",
		"title": "string",
		"body":  "blob",
	}
	req.Index = core.Index{Hash: "key", Range: core.StringList{"rev"}}
	req.SecondaryIndexes = map[string]*core.Index{
		"by_title": {Hash: "title"},
	}
	return req
}

func newTestClient(exec *fakeExecutor) (*Client, *writeback.MemoryQueue) {
	store := schema.NewStore(exec, nil)
	schemas := cache.New(store.Load, nil, nil)
	queue := writeback.NewMemoryQueue(16)
	return New(exec, schemas, queue, nil), queue
}

func TestCreateTableStatementSequence(t *testing.T) {
	exec := &fakeExecutor{}
	c, _ := newTestClient(exec)

	if err := c.CreateTable(context.Background(), "org.wikipedia.en", schemaRequest()); err != nil {
		t.Fatalf("createTable failed: %v", err)
	}

	queries := exec.queries()
	// keyspace + data + meta + one companion + schema document.
	if len(queries) != 5 {
		t.Fatalf("got %d statements: %v", len(queries), queries)
	}
	if !strings.HasPrefix(queries[0], "CREATE KEYSPACE") {
		t.Errorf("first statement = %q", queries[0])
	}
	var families []string
	for _, q := range queries[1:4] {
		if !strings.HasPrefix(q, "CREATE TABLE") {
			t.Errorf("expected CREATE TABLE, got %q", q)
		}
		families = append(families, q)
	}
	joined := strings.Join(families, "\n")
	for _, fam := range []string{`"data"`, `"meta"`, `"i_by_title"`} {
		if !strings.Contains(joined, fam) {
			t.Errorf("no CREATE TABLE for %s in %v", fam, families)
		}
	}
	if !strings.HasPrefix(queries[4], `UPDATE`) || !strings.Contains(queries[4], `"meta"`) {
		t.Errorf("last statement = %q", queries[4])
	}
}

func TestCreateTableRejectsBadSchema(t *testing.T) {
	exec := &fakeExecutor{}
	c, _ := newTestClient(exec)

	req := schemaRequest()
	req.Index.Hash = "nope"
	err := c.CreateTable(context.Background(), "org.wikipedia.en", req)
	var schemaErr *core.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	// Validation is eager: nothing reached the database.
	if len(exec.queries()) != 0 {
		t.Errorf("statements issued despite invalid schema: %v", exec.queries())
	}
}

func TestPutFansOutAsBatch(t *testing.T) {
	exec := &fakeExecutor{}
	c, _ := newTestClient(exec)
	ctx := context.Background()

	if err := c.CreateTable(ctx, "org.wikipedia.en", schemaRequest()); err != nil {
		t.Fatalf("createTable failed: %v", err)
	}
	res, err := c.Put(ctx, "org.wikipedia.en", &core.WriteRequest{
		Table: "pages",
		Attributes: map[string]interface{}{
			"key":   "Main_Page",
			"rev":   1,
			"title": "Main Page",
			"body":  "hello",
		},
	})
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if res.Status != 201 {
		t.Errorf("status = %d, want 201", res.Status)
	}

	if len(exec.batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(exec.batches))
	}
	batch := exec.batches[0]
	if len(batch) != 2 {
		t.Fatalf("batch has %d statements, want 2", len(batch))
	}
	ks := keyspace.Encode("org.wikipedia.en", "pages")
	if !strings.Contains(batch[0].Query, `"`+ks+`"."data"`) {
		t.Errorf("primary targets %q", batch[0].Query)
	}
	if !strings.Contains(batch[1].Query, `"`+ks+`"."i_by_title"`) {
		t.Errorf("companion targets %q", batch[1].Query)
	}
}

func TestPutSurfacesCASFailure(t *testing.T) {
	exec := &fakeExecutor{casApplied: false, casRow: core.Row{"key": "Main_Page"}}
	c, _ := newTestClient(exec)
	ctx := context.Background()

	req := schemaRequest()
	req.SecondaryIndexes = nil
	if err := c.CreateTable(ctx, "org.wikipedia.en", req); err != nil {
		t.Fatalf("createTable failed: %v", err)
	}

	_, err := c.Put(ctx, "org.wikipedia.en", &core.WriteRequest{
		Table: "pages",
		Attributes: map[string]interface{}{
			"key": "Main_Page",
			"rev": 1,
		},
		If: "not exists",
	})
	var casErr *core.CASError
	if !errors.As(err, &casErr) {
		t.Fatalf("expected CASError, got %v", err)
	}
	if casErr.Existing["key"] != "Main_Page" {
		t.Errorf("existing row = %v", casErr.Existing)
	}
}

func TestGetShapesResponse(t *testing.T) {
	exec := &fakeExecutor{rows: []core.Row{
		{"key": "Main_Page", "rev": 1},
		{"key": "Main_Page", "rev": 2},
	}}
	c, _ := newTestClient(exec)
	ctx := context.Background()

	if err := c.CreateTable(ctx, "org.wikipedia.en", schemaRequest()); err != nil {
		t.Fatalf("createTable failed: %v", err)
	}
	res, err := c.Get(ctx, "org.wikipedia.en", &core.ReadRequest{
		Table:      "pages",
		Attributes: map[string]interface{}{"key": "Main_Page"},
	})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if res.Count != 2 || len(res.Items) != 2 {
		t.Errorf("response = %+v", res)
	}
}

func TestGetLoadsSchemaFromMeta(t *testing.T) {
	s := &core.Schema{
		Attributes: map[string]string{"key": "string", "tid": "timeuuid"},
		Index:      core.Index{Hash: "key", Range: core.StringList{"tid"}},
	}
	if err := schema.Enrich(s); err != nil {
		t.Fatalf("enrich failed: %v", err)
	}
	doc, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	// The cache is cold, so the read planner's schema comes from the meta
	// row the executor serves.
	exec := &fakeExecutor{rows: []core.Row{{"value": string(doc)}}}
	c, _ := newTestClient(exec)

	_, err = c.Get(context.Background(), "org.wikipedia.en", &core.ReadRequest{
		Table: "pages",
		Order: "desc",
	})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	queries := exec.queries()
	if len(queries) != 2 {
		t.Fatalf("got %d statements: %v", len(queries), queries)
	}
	if !strings.Contains(queries[0], `"meta"`) {
		t.Errorf("first statement should read meta, got %q", queries[0])
	}
	if !strings.Contains(queries[1], `ORDER BY "tid" desc`) {
		t.Errorf("read statement = %q", queries[1])
	}
}

func TestDeleteEnqueuesRepairs(t *testing.T) {
	exec := &fakeExecutor{}
	c, queue := newTestClient(exec)
	ctx := context.Background()

	if err := c.CreateTable(ctx, "org.wikipedia.en", schemaRequest()); err != nil {
		t.Fatalf("createTable failed: %v", err)
	}
	if err := c.Delete(ctx, "org.wikipedia.en", &core.DeleteRequest{
		Table:      "pages",
		Attributes: map[string]interface{}{"key": "Main_Page", "rev": 1},
	}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	ops, err := queue.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if len(ops) != 1 || ops[0].Index != "by_title" {
		t.Errorf("repair ops = %v", ops)
	}
	if ops[0].EnqueuedAt.IsZero() {
		t.Error("repair op missing enqueue timestamp")
	}
}

func TestDropTableInvalidatesCache(t *testing.T) {
	exec := &fakeExecutor{}
	c, _ := newTestClient(exec)
	ctx := context.Background()

	if err := c.CreateTable(ctx, "org.wikipedia.en", schemaRequest()); err != nil {
		t.Fatalf("createTable failed: %v", err)
	}
	if err := c.DropTable(ctx, "org.wikipedia.en", "pages"); err != nil {
		t.Fatalf("dropTable failed: %v", err)
	}
	queries := exec.queries()
	last := queries[len(queries)-1]
	if !strings.HasPrefix(last, "DROP KEYSPACE") {
		t.Errorf("last statement = %q", last)
	}

	// With the cache invalidated, a put must reload from meta; the fake
	// returns no rows, so the schema is gone.
	_, err := c.Put(ctx, "org.wikipedia.en", &core.WriteRequest{
		Table:      "pages",
		Attributes: map[string]interface{}{"key": "x", "rev": 1},
	})
	if !errors.Is(err, core.ErrSchemaNotFound) {
		t.Errorf("expected ErrSchemaNotFound, got %v", err)
	}
}
