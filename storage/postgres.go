package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/sellerlens/adsvault/idgen"
)

// PostgresConfig describes the server backend connection. DatabaseURL wins
// when set; otherwise a keyword DSN is assembled from the parts.
type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	Host        string `yaml:"host" env:"POSTGRES_HOST"`
	Port        string `yaml:"port" env:"POSTGRES_PORT"`
	User        string `yaml:"user" env:"POSTGRES_USER"`
	Password    string `yaml:"password" env:"POSTGRES_PASSWORD"`
	DBName      string `yaml:"dbname" env:"POSTGRES_DB"`
	SSLMode     string `yaml:"sslmode" env:"POSTGRES_SSLMODE"`

	// MaxOpenConns bounds the shared connection pool. Default: 10.
	MaxOpenConns int `yaml:"max_open_conns" env:"POSTGRES_MAX_CONNS"`
}

func (c *PostgresConfig) defaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == "" {
		c.Port = "5432"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
}

// DSN returns the connection string.
func (c *PostgresConfig) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Postgres is the server-relational Provider. Concurrent operations share a
// bounded connection pool.
type Postgres struct {
	db    *sql.DB
	newID idgen.Generator
}

// PostgresOption configures a Postgres provider.
type PostgresOption func(*Postgres)

// WithPostgresIDGenerator sets a custom ID generator.
func WithPostgresIDGenerator(gen idgen.Generator) PostgresOption {
	return func(p *Postgres) { p.newID = gen }
}

// OpenPostgres connects to the server and verifies the connection.
func OpenPostgres(cfg PostgresConfig, opts ...PostgresOption) (*Postgres, error) {
	cfg.defaults()

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("storage: postgres open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: postgres ping: %w", err)
	}
	return NewPostgres(db, opts...), nil
}

// NewPostgres wraps an already-opened database handle.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, newID: idgen.Default}
	for _, o := range opts {
		o(p)
	}
	return p
}

// DB exposes the underlying handle for direct access (testing, admin).
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Init applies the schema. Idempotent: all DDL is IF NOT EXISTS.
func (p *Postgres) Init(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaPostgres); err != nil {
		return fmt.Errorf("storage: postgres init: %w", err)
	}
	return nil
}

// Insert stores a new record.
func (p *Postgres) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	stored := rec.Clone()
	fillNewRecord(stored, p.newID)

	cols, err := recordColumns(stored)
	if err != nil {
		return nil, err
	}
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		marks[i] = postgresPlaceholder(i + 1)
		args[i] = stored[c]
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := p.db.ExecContext(ctx, stmt, args...); err != nil {
		if isPostgresUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateKey, table, stored.ID())
		}
		return nil, fmt.Errorf("storage: postgres insert: %w", err)
	}
	return stored, nil
}

// Update applies patch to the row with the given id, or returns nil when
// absent.
func (p *Postgres) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	set := patch.Clone()
	delete(set, FieldID)
	delete(set, FieldCreatedAt)
	if _, ok := set[FieldUpdatedAt]; !ok {
		set[FieldUpdatedAt] = time.Now().UnixMilli()
	}

	cols, err := recordColumns(set)
	if err != nil {
		return nil, err
	}
	assigns := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		assigns[i] = fmt.Sprintf("%s = %s", c, postgresPlaceholder(i+1))
		args = append(args, set[c])
	}
	args = append(args, id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		table, strings.Join(assigns, ", "), postgresPlaceholder(len(cols)+1))
	res, err := p.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: postgres update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("storage: postgres update: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return p.GetByID(ctx, table, id)
}

// GetByID returns the record or nil.
func (p *Postgres) GetByID(ctx context.Context, table, id string) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	recs, err := p.selectRecords(ctx, fmt.Sprintf("SELECT * FROM %s WHERE id = $1", table), id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// Query filters, sorts, and paginates.
func (p *Postgres) Query(ctx context.Context, table string, q *Query) ([]Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT * FROM %s", table)
	var args []any
	if q != nil {
		where, whereArgs, err := buildWhere(q.Conds, postgresPlaceholder, 1, nil)
		if err != nil {
			return nil, err
		}
		tail, err := buildTail(q, false)
		if err != nil {
			return nil, err
		}
		stmt += where + tail
		args = whereArgs
	}
	return p.selectRecords(ctx, stmt, args...)
}

// Count reports how many rows match conds.
func (p *Postgres) Count(ctx context.Context, table string, conds []Cond) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	where, args, err := buildWhere(conds, postgresPlaceholder, 1, nil)
	if err != nil {
		return 0, err
	}
	var n int64
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", table) + where
	if err := p.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: postgres count: %w", err)
	}
	return n, nil
}

// Delete removes the row with the given id, tolerating absence.
func (p *Postgres) Delete(ctx context.Context, table, id string) (bool, error) {
	if err := checkIdent(table); err != nil {
		return false, err
	}
	res, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return false, fmt.Errorf("storage: postgres delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage: postgres delete: %w", err)
	}
	return n > 0, nil
}

// Execute runs a raw statement: rows for reads, affected count otherwise.
func (p *Postgres) Execute(ctx context.Context, stmt string, args ...any) (*ExecResult, error) {
	if isReadStatement(stmt) {
		rows, err := p.selectRecords(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		return &ExecResult{Rows: rows}, nil
	}
	res, err := p.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: postgres execute: %w", err)
	}
	n, _ := res.RowsAffected()
	return &ExecResult{Affected: n}, nil
}

// Clear wipes all managed tables.
func (p *Postgres) Clear(ctx context.Context) error {
	for _, t := range Tables {
		if _, err := p.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "42P01" { // undefined_table
				continue
			}
			return fmt.Errorf("storage: postgres clear %s: %w", t, err)
		}
	}
	return nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) selectRecords(ctx context.Context, stmt string, args ...any) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: postgres query: %w", err)
	}
	defer rows.Close()

	out, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("storage: postgres scan: %w", err)
	}
	return out, nil
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

var _ Provider = (*Postgres)(nil)
