package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/sellerlens/adsvault/dbopen"
)

// testProviders returns every backend that can run without external
// infrastructure. The contract requires identical observable behaviour
// from each, so every test in this file runs against all of them.
func testProviders(t *testing.T) map[string]Provider {
	t.Helper()

	sqlite := NewSQLite(dbopen.OpenMemory(t))
	if err := sqlite.Init(context.Background()); err != nil {
		t.Fatalf("sqlite init: %v", err)
	}

	return map[string]Provider{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

// seedEvents inserts a deterministic dataset into the events table.
func seedEvents(t *testing.T, p Provider) {
	t.Helper()
	ctx := context.Background()

	rows := []Record{
		{"id": "e1", "event_type": "cache_refresh", "entity_id": "example.com", "details": "ads", "success": int64(1), "created_at": int64(100), "updated_at": int64(100)},
		{"id": "e2", "event_type": "cache_refresh", "entity_id": "news.org", "details": "sellers", "success": int64(1), "created_at": int64(200), "updated_at": int64(200)},
		{"id": "e3", "event_type": "backfill_run", "entity_id": "", "details": "full", "success": int64(0), "created_at": int64(300), "updated_at": int64(300)},
		{"id": "e4", "event_type": "backfill_run", "entity_id": "", "details": "resume", "success": int64(1), "created_at": int64(400), "updated_at": int64(400)},
	}
	for _, r := range rows {
		if _, err := p.Insert(ctx, TableEvents, r); err != nil {
			t.Fatalf("seed insert %s: %v", r.ID(), err)
		}
	}
}

func ids(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID()
	}
	return out
}

func TestProvider_InsertAndGetByID(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			stored, err := p.Insert(ctx, TableEvents, Record{
				"event_type": "cache_refresh",
				"entity_id":  "example.com",
			})
			if err != nil {
				t.Fatalf("insert: %v", err)
			}
			if stored.ID() == "" {
				t.Fatal("insert should assign an id")
			}
			if stored.Int64("created_at") == 0 || stored.Int64("updated_at") == 0 {
				t.Error("insert should assign timestamps")
			}

			got, err := p.GetByID(ctx, TableEvents, stored.ID())
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got == nil {
				t.Fatal("get: got nil")
			}
			if got.String("entity_id") != "example.com" {
				t.Errorf("entity_id: got %q", got.String("entity_id"))
			}

			missing, err := p.GetByID(ctx, TableEvents, "nope")
			if err != nil {
				t.Fatalf("get missing: %v", err)
			}
			if missing != nil {
				t.Errorf("get missing: expected nil, got %v", missing)
			}
		})
	}
}

func TestProvider_InsertDuplicateKey(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rec := Record{"id": "dup", "event_type": "cache_refresh", "created_at": int64(1), "updated_at": int64(1)}
			if _, err := p.Insert(ctx, TableEvents, rec); err != nil {
				t.Fatalf("first insert: %v", err)
			}
			_, err := p.Insert(ctx, TableEvents, rec.Clone())
			if !errors.Is(err, ErrDuplicateKey) {
				t.Fatalf("second insert: expected ErrDuplicateKey, got %v", err)
			}
		})
	}
}

func TestProvider_UpdateNeverCreates(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := p.Update(ctx, TableEvents, "ghost", Record{"details": "x"})
			if err != nil {
				t.Fatalf("update missing: %v", err)
			}
			if got != nil {
				t.Fatalf("update missing: expected nil, got %v", got)
			}

			recs, err := p.Query(ctx, TableEvents, nil)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(recs) != 0 {
				t.Errorf("update must never create: found %d rows", len(recs))
			}
		})
	}
}

func TestProvider_UpdatePreservesIDAndCreatedAt(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			stored, err := p.Insert(ctx, TableEvents, Record{
				"id": "e1", "event_type": "cache_refresh",
				"created_at": int64(111), "updated_at": int64(111),
			})
			if err != nil {
				t.Fatalf("insert: %v", err)
			}

			updated, err := p.Update(ctx, TableEvents, "e1", Record{
				"id":         "hijack",
				"created_at": int64(999),
				"details":    "changed",
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if updated.ID() != "e1" {
				t.Errorf("id changed: got %q", updated.ID())
			}
			if updated.Int64("created_at") != stored.Int64("created_at") {
				t.Errorf("created_at changed: got %d, want %d",
					updated.Int64("created_at"), stored.Int64("created_at"))
			}
			if updated.String("details") != "changed" {
				t.Errorf("details: got %q", updated.String("details"))
			}
			if updated.Int64("updated_at") < updated.Int64("created_at") {
				t.Error("updated_at must be >= created_at")
			}
		})
	}
}

func TestProvider_QueryOperators(t *testing.T) {
	cases := []struct {
		name string
		cond Cond
		want []string
	}{
		{"eq", Cond{Field: "event_type", Op: OpEq, Value: "cache_refresh"}, []string{"e1", "e2"}},
		{"ne", Cond{Field: "event_type", Op: OpNe, Value: "cache_refresh"}, []string{"e3", "e4"}},
		{"gt", Cond{Field: "created_at", Op: OpGt, Value: int64(200)}, []string{"e3", "e4"}},
		{"gte", Cond{Field: "created_at", Op: OpGte, Value: int64(200)}, []string{"e2", "e3", "e4"}},
		{"lt", Cond{Field: "created_at", Op: OpLt, Value: int64(200)}, []string{"e1"}},
		{"lte", Cond{Field: "created_at", Op: OpLte, Value: int64(200)}, []string{"e1", "e2"}},
		{"like", Cond{Field: "details", Op: OpLike, Value: "ll"}, []string{"e2", "e3"}},
		{"like_mixed_case", Cond{Field: "details", Op: OpLike, Value: "SELL"}, []string{"e2"}},
		{"in", Cond{Field: "entity_id", Op: OpIn, Value: []any{"example.com", "news.org"}}, []string{"e1", "e2"}},
		{"in_empty", Cond{Field: "entity_id", Op: OpIn, Value: []any{}}, []string{}},
	}

	for name, p := range testProviders(t) {
		seedEvents(t, p)
		for _, c := range cases {
			t.Run(name+"/"+c.name, func(t *testing.T) {
				got, err := p.Query(context.Background(), TableEvents, &Query{
					Conds: []Cond{c.cond},
					Sort:  &Sort{Field: "created_at"},
				})
				if err != nil {
					t.Fatalf("query: %v", err)
				}
				gotIDs := ids(got)
				if fmt.Sprint(gotIDs) != fmt.Sprint(c.want) {
					t.Errorf("got %v, want %v", gotIDs, c.want)
				}
			})
		}
	}
}

func TestProvider_QuerySortAndPagination(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			seedEvents(t, p)
			ctx := context.Background()

			desc, err := p.Query(ctx, TableEvents, &Query{
				Sort: &Sort{Field: "created_at", Desc: true},
			})
			if err != nil {
				t.Fatalf("query desc: %v", err)
			}
			if got := fmt.Sprint(ids(desc)); got != "[e4 e3 e2 e1]" {
				t.Errorf("desc order: got %v", got)
			}

			page, err := p.Query(ctx, TableEvents, &Query{
				Sort:   &Sort{Field: "created_at"},
				Limit:  2,
				Offset: 1,
			})
			if err != nil {
				t.Fatalf("query page: %v", err)
			}
			if got := fmt.Sprint(ids(page)); got != "[e2 e3]" {
				t.Errorf("page: got %v", got)
			}

			offsetOnly, err := p.Query(ctx, TableEvents, &Query{
				Sort:   &Sort{Field: "created_at"},
				Offset: 3,
			})
			if err != nil {
				t.Fatalf("query offset only: %v", err)
			}
			if got := fmt.Sprint(ids(offsetOnly)); got != "[e4]" {
				t.Errorf("offset only: got %v", got)
			}
		})
	}
}

func TestProvider_QueryNoMatchIsEmptyNotError(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			got, err := p.Query(context.Background(), TableEvents, &Query{
				Conds: []Cond{{Field: "event_type", Op: OpEq, Value: "nothing"}},
			})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("expected empty slice, got %v", got)
			}
		})
	}
}

// The table is deliberately left empty: the operator must be rejected
// before any row is examined.
func TestProvider_QueryUnknownOperator(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			bad := []Cond{{Field: "event_type", Op: "regex", Value: ".*"}}

			_, err := p.Query(context.Background(), TableEvents, &Query{Conds: bad})
			if !errors.Is(err, ErrUnknownOp) {
				t.Fatalf("query: expected ErrUnknownOp, got %v", err)
			}

			_, err = p.Count(context.Background(), TableEvents, bad)
			if !errors.Is(err, ErrUnknownOp) {
				t.Fatalf("count: expected ErrUnknownOp, got %v", err)
			}
		})
	}
}

func TestProvider_QueryLikeRequiresString(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			_, err := p.Query(context.Background(), TableEvents, &Query{
				Conds: []Cond{{Field: "details", Op: OpLike, Value: 7}},
			})
			if err == nil {
				t.Fatal("expected error for non-string like value")
			}
		})
	}
}

func TestProvider_Count(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			seedEvents(t, p)
			ctx := context.Background()

			all, err := p.Count(ctx, TableEvents, nil)
			if err != nil {
				t.Fatalf("count all: %v", err)
			}
			if all != 4 {
				t.Errorf("count all: got %d, want 4", all)
			}

			some, err := p.Count(ctx, TableEvents, []Cond{Eq("event_type", "cache_refresh")})
			if err != nil {
				t.Fatalf("count filtered: %v", err)
			}
			if some != 2 {
				t.Errorf("filtered count: got %d, want 2", some)
			}

			none, err := p.Count(ctx, TableEvents, []Cond{Eq("event_type", "missing")})
			if err != nil {
				t.Fatalf("count none: %v", err)
			}
			if none != 0 {
				t.Errorf("count none: got %d, want 0", none)
			}
		})
	}
}

func TestProvider_Delete(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			seedEvents(t, p)
			ctx := context.Background()

			deleted, err := p.Delete(ctx, TableEvents, "e2")
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
			if !deleted {
				t.Error("delete existing: reported false")
			}
			rec, err := p.GetByID(ctx, TableEvents, "e2")
			if err != nil {
				t.Fatalf("get after delete: %v", err)
			}
			if rec != nil {
				t.Errorf("row survived delete: %v", rec)
			}

			deleted, err = p.Delete(ctx, TableEvents, "e2")
			if err != nil {
				t.Fatalf("delete absent: %v", err)
			}
			if deleted {
				t.Error("delete absent: reported true")
			}
		})
	}
}

func TestProvider_Clear(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			seedEvents(t, p)
			ctx := context.Background()

			if err := p.Clear(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			recs, err := p.Query(ctx, TableEvents, nil)
			if err != nil {
				t.Fatalf("query after clear: %v", err)
			}
			if len(recs) != 0 {
				t.Errorf("rows after clear: got %d, want 0", len(recs))
			}
		})
	}
}

// TestProvider_Equivalence runs one mixed scenario against every backend
// and requires byte-for-byte identical id sequences.
func TestProvider_Equivalence(t *testing.T) {
	queries := []*Query{
		nil,
		{Conds: []Cond{{Field: "success", Op: OpEq, Value: int64(1)}}, Sort: &Sort{Field: "created_at"}},
		{Conds: []Cond{
			{Field: "event_type", Op: OpLike, Value: "refresh"},
			{Field: "created_at", Op: OpGte, Value: int64(150)},
		}, Sort: &Sort{Field: "created_at", Desc: true}},
		{Sort: &Sort{Field: "created_at", Desc: true}, Limit: 2},
		{Conds: []Cond{{Field: "entity_id", Op: OpIn, Value: []any{"news.org"}}}},
		{Conds: []Cond{{Field: "details", Op: OpLike, Value: "sell"}}, Sort: &Sort{Field: "created_at"}},
	}

	providers := testProviders(t)
	results := make(map[string][][]string)
	for name, p := range providers {
		seedEvents(t, p)
		// Mixed-case row: like matching must agree across backends here too.
		if _, err := p.Insert(context.Background(), TableEvents, Record{
			"id": "e5", "event_type": "Cache_Refresh", "entity_id": "MiXeD.example",
			"details": "Sellers", "success": int64(1), "created_at": int64(500), "updated_at": int64(500),
		}); err != nil {
			t.Fatalf("%s seed e5: %v", name, err)
		}
		for _, q := range queries {
			got, err := p.Query(context.Background(), TableEvents, q)
			if err != nil {
				t.Fatalf("%s query %+v: %v", name, q, err)
			}
			results[name] = append(results[name], ids(got))
		}
	}

	want := results["memory"]
	for name, got := range results {
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("provider %s diverges from memory reference:\n got %v\nwant %v", name, got, want)
		}
	}
}

func TestSQLite_ExecuteEscapeHatch(t *testing.T) {
	p := NewSQLite(dbopen.OpenMemory(t))
	ctx := context.Background()
	if err := p.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	seedEvents(t, p)

	res, err := p.Execute(ctx, "SELECT COUNT(*) AS n FROM events WHERE success = ?", int64(1))
	if err != nil {
		t.Fatalf("execute read: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].Int64("n") != 3 {
		t.Errorf("count: got %v", res.Rows)
	}

	res, err = p.Execute(ctx, "DELETE FROM events WHERE event_type = ?", "backfill_run")
	if err != nil {
		t.Fatalf("execute write: %v", err)
	}
	if res.Affected != 2 {
		t.Errorf("affected: got %d, want 2", res.Affected)
	}
}

func TestSQLite_InitIsIdempotent(t *testing.T) {
	p := NewSQLite(dbopen.OpenMemory(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := p.Init(ctx); err != nil {
			t.Fatalf("init #%d: %v", i+1, err)
		}
	}
}

func TestProvider_BadTableName(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			_, err := p.Query(context.Background(), "events; DROP TABLE events", nil)
			if !errors.Is(err, ErrBadIdentifier) {
				t.Fatalf("expected ErrBadIdentifier, got %v", err)
			}
		})
	}
}
