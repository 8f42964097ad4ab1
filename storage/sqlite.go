package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sellerlens/adsvault/dbopen"
	"github.com/sellerlens/adsvault/idgen"
)

// SQLite is the embedded file-backed Provider. All statements are
// serialized through a single connection, so writers queue instead of
// racing the WAL; dbopen's busy retry covers the residual lock windows.
type SQLite struct {
	db    *sql.DB
	newID idgen.Generator
}

// SQLiteOption configures a SQLite provider.
type SQLiteOption func(*SQLite)

// WithSQLiteIDGenerator sets a custom ID generator.
func WithSQLiteIDGenerator(gen idgen.Generator) SQLiteOption {
	return func(s *SQLite) { s.newID = gen }
}

// OpenSQLite opens (or creates) the database at path with the adsvault
// pragmas applied. The caller must blank-import modernc.org/sqlite.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return NewSQLite(db, opts...), nil
}

// NewSQLite wraps an already-opened database handle (tests use this with
// dbopen.OpenMemory).
func NewSQLite(db *sql.DB, opts ...SQLiteOption) *SQLite {
	s := &SQLite{db: db, newID: idgen.Default}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DB exposes the underlying handle for direct access (testing, admin).
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Init applies the schema. Idempotent: all DDL is IF NOT EXISTS.
func (s *SQLite) Init(ctx context.Context) error {
	if _, err := dbopen.Exec(ctx, s.db, schemaSQLite); err != nil {
		return fmt.Errorf("storage: sqlite init: %w", err)
	}
	return nil
}

// Insert stores a new record.
func (s *SQLite) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	stored := rec.Clone()
	fillNewRecord(stored, s.newID)

	cols, err := recordColumns(stored)
	if err != nil {
		return nil, err
	}
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		marks[i] = "?"
		args[i] = stored[c]
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := dbopen.Exec(ctx, s.db, stmt, args...); err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateKey, table, stored.ID())
		}
		return nil, fmt.Errorf("storage: sqlite insert: %w", err)
	}
	return stored, nil
}

// Update applies patch to the row with the given id, or returns nil when
// absent.
func (s *SQLite) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
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
		assigns[i] = c + " = ?"
		args = append(args, set[c])
	}
	args = append(args, id)

	// Write and read-back share one transaction so the returned record is
	// exactly the state this update produced.
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(assigns, ", "))
	var out Record
	err = dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE id = ?", table), id)
		if err != nil {
			return err
		}
		defer rows.Close()
		recs, err := scanRecords(rows)
		if err != nil {
			return err
		}
		if len(recs) > 0 {
			out = recs[0]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: sqlite update: %w", err)
	}
	return out, nil
}

// GetByID returns the record or nil.
func (s *SQLite) GetByID(ctx context.Context, table, id string) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	recs, err := s.selectRecords(ctx, fmt.Sprintf("SELECT * FROM %s WHERE id = ?", table), id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// Query filters, sorts, and paginates.
func (s *SQLite) Query(ctx context.Context, table string, q *Query) ([]Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT * FROM %s", table)
	var args []any
	if q != nil {
		where, whereArgs, err := buildWhere(q.Conds, sqlitePlaceholder, 1, nil)
		if err != nil {
			return nil, err
		}
		tail, err := buildTail(q, true)
		if err != nil {
			return nil, err
		}
		stmt += where + tail
		args = whereArgs
	}
	return s.selectRecords(ctx, stmt, args...)
}

// Count reports how many rows match conds.
func (s *SQLite) Count(ctx context.Context, table string, conds []Cond) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	where, args, err := buildWhere(conds, sqlitePlaceholder, 1, nil)
	if err != nil {
		return 0, err
	}
	var n int64
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", table) + where
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: sqlite count: %w", err)
	}
	return n, nil
}

// Delete removes the row with the given id, tolerating absence.
func (s *SQLite) Delete(ctx context.Context, table, id string) (bool, error) {
	if err := checkIdent(table); err != nil {
		return false, err
	}
	res, err := dbopen.Exec(ctx, s.db, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return false, fmt.Errorf("storage: sqlite delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage: sqlite delete: %w", err)
	}
	return n > 0, nil
}

// Execute runs a raw statement: rows for reads, affected count otherwise.
func (s *SQLite) Execute(ctx context.Context, stmt string, args ...any) (*ExecResult, error) {
	if isReadStatement(stmt) {
		rows, err := s.selectRecords(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		return &ExecResult{Rows: rows}, nil
	}
	res, err := dbopen.Exec(ctx, s.db, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: sqlite execute: %w", err)
	}
	n, _ := res.RowsAffected()
	return &ExecResult{Affected: n}, nil
}

// Clear wipes all managed tables in one transaction, so a failed wipe
// leaves no table half-emptied.
func (s *SQLite) Clear(ctx context.Context) error {
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, t := range Tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				if strings.Contains(err.Error(), "no such table") {
					continue
				}
				return fmt.Errorf("clear %s: %w", t, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: sqlite clear: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) selectRecords(ctx context.Context, stmt string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: sqlite query: %w", err)
	}
	defer rows.Close()

	out, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("storage: sqlite scan: %w", err)
	}
	return out, nil
}

// scanRecords reads every row into a Record keyed by column name, with
// []byte normalized to string so both SQL backends return the same shapes.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []Record{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			switch v := vals[i].(type) {
			case []byte:
				rec[c] = string(v)
			default:
				rec[c] = v
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isReadStatement reports whether a raw statement should be executed as a
// query. Covers SELECT, WITH (CTE reads) and PRAGMA inspection.
func isReadStatement(stmt string) bool {
	head := strings.ToUpper(strings.TrimSpace(stmt))
	return strings.HasPrefix(head, "SELECT") ||
		strings.HasPrefix(head, "WITH") ||
		strings.HasPrefix(head, "PRAGMA")
}

var _ Provider = (*SQLite)(nil)
