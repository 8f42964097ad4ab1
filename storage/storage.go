// Package storage provides the persistence contract for adsvault and three
// interchangeable Provider implementations: an in-memory store for tests, an
// embedded SQLite store, and a server PostgreSQL store.
//
// All providers produce identical observable results for the portable
// methods (Insert/Update/GetByID/Query) given identical inputs. The
// in-memory provider's condition evaluator is the reference semantics the
// SQL providers must match.
//
// The concrete provider is selected exactly once at process start (see
// Open); the rest of the system is written against the Provider interface
// and receives its instance by injection.
package storage

import (
	"context"
	"errors"
)

// Record is a persisted entity: an opaque string id, unix-millisecond
// created_at/updated_at timestamps, and an open set of additional named
// fields (strings, numbers, booleans).
type Record map[string]any

// Well-known record fields.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// ID returns the record id, or "" when absent.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// String returns the named field as a string, or "" when absent or not a
// string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Int64 returns the named field as an int64, converting from the numeric
// types a backend may hand back.
func (r Record) Int64(field string) int64 {
	switch v := r[field].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Op is a filter operator.
type Op string

// Filter operators. Unknown operators are a hard error, never silently
// ignored.
const (
	OpEq   Op = "eq"   // equal
	OpNe   Op = "ne"   // not equal
	OpGt   Op = "gt"   // greater than
	OpGte  Op = "gte"  // greater or equal
	OpLt   Op = "lt"   // less than
	OpLte  Op = "lte"  // less or equal
	OpLike Op = "like" // case-insensitive substring contains
	OpIn   Op = "in"   // membership in set (value must be a slice)
)

// Cond is a single filter condition on one field.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Eq is shorthand for an equality condition.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: OpEq, Value: value}
}

// Where builds a condition with an explicit operator.
func Where(field string, op Op, value any) Cond {
	return Cond{Field: field, Op: op, Value: value}
}

// Sort orders query results by a single field.
type Sort struct {
	Field string
	Desc  bool
}

// Query carries conditions (combined with logical AND), an optional sort,
// and optional pagination. A nil Query matches everything.
type Query struct {
	Conds  []Cond
	Sort   *Sort
	Limit  int
	Offset int
}

// ExecResult is the outcome of a raw Execute call: Rows for read
// statements, Affected for everything else.
type ExecResult struct {
	Rows     []Record
	Affected int64
}

// Sentinel errors shared by all providers.
var (
	// ErrDuplicateKey is returned by Insert when the record id already
	// exists in the table.
	ErrDuplicateKey = errors.New("storage: duplicate key")

	// ErrUnknownOp is returned when a query carries an operator outside the
	// defined set.
	ErrUnknownOp = errors.New("storage: unknown operator")

	// ErrBadIdentifier is returned when a table or column name fails
	// identifier validation.
	ErrBadIdentifier = errors.New("storage: invalid identifier")
)

// Provider is the storage contract implemented identically by each backend.
type Provider interface {
	// Init idempotently ensures required tables and indexes exist.
	Init(ctx context.Context) error

	// Insert stores a new record and returns the stored copy (with id and
	// timestamps filled in). Fails with ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, table string, rec Record) (Record, error)

	// Update applies a partial record to an existing row and returns the
	// updated record, or nil if the id is not found. Update never creates.
	Update(ctx context.Context, table, id string, patch Record) (Record, error)

	// GetByID returns the record or nil when absent.
	GetByID(ctx context.Context, table, id string) (Record, error)

	// Query returns records matching q, sorted and paginated as requested.
	// No match is an empty slice, not an error.
	Query(ctx context.Context, table string, q *Query) ([]Record, error)

	// Delete removes the record with the given id. Deleting an absent id
	// is a no-op; deleted reports whether a row actually went away.
	Delete(ctx context.Context, table, id string) (deleted bool, err error)

	// Count returns the number of records matching conds (all of them when
	// conds is empty) without materializing the rows.
	Count(ctx context.Context, table string, conds []Cond) (int64, error)

	// Execute is the backend-specific escape hatch for raw statements
	// (schema migrations, aggregate counts). Not portable; ordinary code
	// paths must not depend on it.
	Execute(ctx context.Context, stmt string, args ...any) (*ExecResult, error)

	// Clear wipes all data. Used only by test and backfill tooling.
	Clear(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
