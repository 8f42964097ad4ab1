package storage

import (
	"context"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestConfig_Resolve(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit memory", Config{Backend: BackendMemory}, BackendMemory},
		{"explicit postgres", Config{Backend: BackendPostgres}, BackendPostgres},
		{"test env", Config{AppEnv: "test"}, BackendMemory},
		{"database url", Config{Postgres: PostgresConfig{DatabaseURL: "postgres://x"}}, BackendPostgres},
		{"default", Config{}, BackendSQLite},
		{"explicit beats env", Config{Backend: BackendSQLite, AppEnv: "test"}, BackendSQLite},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.cfg.Resolve(); got != c.want {
				t.Errorf("Resolve: got %q, want %q", got, c.want)
			}
		})
	}
}

func TestOpen_Memory(t *testing.T) {
	p, err := Open(Config{Backend: BackendMemory}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	if _, ok := p.(*Memory); !ok {
		t.Fatalf("expected *Memory, got %T", p)
	}
}

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "adsvault.db")
	p, err := Open(Config{Backend: BackendSQLite, SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	ctx := context.Background()
	if err := p.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := p.Insert(ctx, TableEvents, Record{"event_type": "cache_refresh"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "redis"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
