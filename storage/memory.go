package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sellerlens/adsvault/idgen"
)

// Memory is the volatile in-memory Provider, reserved for automated tests.
// It exists so the condition evaluator's operator set can be exercised
// without a real database; its filtering behaviour is the reference
// semantics the SQL providers match.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	newID  idgen.Generator
}

type memTable struct {
	recs  map[string]Record
	order []string // insertion order, the stable default for unsorted queries
}

// MemoryOption configures a Memory provider.
type MemoryOption func(*Memory)

// WithMemoryIDGenerator sets a custom ID generator.
func WithMemoryIDGenerator(gen idgen.Generator) MemoryOption {
	return func(m *Memory) { m.newID = gen }
}

// NewMemory creates an empty in-memory provider.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		tables: make(map[string]*memTable),
		newID:  idgen.Default,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Init is a no-op beyond validating nothing: tables materialize on first
// write.
func (m *Memory) Init(ctx context.Context) error {
	return nil
}

func (m *Memory) table(name string) *memTable {
	t, ok := m.tables[name]
	if !ok {
		t = &memTable{recs: make(map[string]Record)}
		m.tables[name] = t
	}
	return t
}

// Insert stores a new record.
func (m *Memory) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := rec.Clone()
	fillNewRecord(stored, m.newID)

	t := m.table(table)
	id := stored.ID()
	if _, exists := t.recs[id]; exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateKey, table, id)
	}
	t.recs[id] = stored
	t.order = append(t.order, id)
	return stored.Clone(), nil
}

// Update applies patch to an existing record, or returns nil when absent.
func (m *Memory) Update(ctx context.Context, table, id string, patch Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	rec, ok := t.recs[id]
	if !ok {
		return nil, nil
	}

	for k, v := range patch {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		rec[k] = v
	}
	if _, ok := patch[FieldUpdatedAt]; !ok {
		rec[FieldUpdatedAt] = time.Now().UnixMilli()
	}
	return rec.Clone(), nil
}

// GetByID returns the record or nil.
func (m *Memory) GetByID(ctx context.Context, table, id string) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	rec, ok := t.recs[id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Query filters, sorts, and paginates.
func (m *Memory) Query(ctx context.Context, table string, q *Query) ([]Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	var conds []Cond
	if q != nil {
		conds = q.Conds
	}
	if err := checkConds(conds); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Record{}
	t, ok := m.tables[table]
	if !ok {
		return out, nil
	}
	for _, id := range t.order {
		rec, ok := t.recs[id]
		if !ok {
			continue
		}
		match, err := Match(rec, conds)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, rec.Clone())
		}
	}

	if q != nil && q.Sort != nil {
		field, desc := q.Sort.Field, q.Sort.Desc
		sort.SliceStable(out, func(i, j int) bool {
			cmp, ok := valueCompare(out[i][field], out[j][field])
			if !ok {
				// Incomparable pairs keep insertion order; records missing
				// the field sort first.
				_, iOK := out[i][field]
				_, jOK := out[j][field]
				if iOK == jOK {
					return false
				}
				less := !iOK
				if desc {
					return !less
				}
				return less
			}
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	if q != nil {
		out = paginate(out, q.Limit, q.Offset)
	}
	return out, nil
}

// Count reports how many records match conds.
func (m *Memory) Count(ctx context.Context, table string, conds []Cond) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	if err := checkConds(conds); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[table]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, rec := range t.recs {
		match, err := Match(rec, conds)
		if err != nil {
			return 0, err
		}
		if match {
			n++
		}
	}
	return n, nil
}

// Delete removes the record, tolerating absence.
func (m *Memory) Delete(ctx context.Context, table, id string) (bool, error) {
	if err := checkIdent(table); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return false, nil
	}
	if _, ok := t.recs[id]; !ok {
		return false, nil
	}
	delete(t.recs, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Execute is unsupported on the in-memory backend: there is no statement
// dialect to execute. Tests that need raw statements run against SQLite.
func (m *Memory) Execute(ctx context.Context, stmt string, args ...any) (*ExecResult, error) {
	return nil, fmt.Errorf("storage: memory provider does not support raw statements")
}

// Clear wipes all tables.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = make(map[string]*memTable)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

func paginate(recs []Record, limit, offset int) []Record {
	if offset > 0 {
		if offset >= len(recs) {
			return []Record{}
		}
		recs = recs[offset:]
	}
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}

var _ Provider = (*Memory)(nil)

// fillNewRecord assigns an id and creation timestamps to a record about to
// be inserted, leaving caller-provided values alone.
func fillNewRecord(rec Record, newID idgen.Generator) {
	if rec.ID() == "" {
		rec[FieldID] = newID()
	}
	now := time.Now().UnixMilli()
	if _, ok := rec[FieldCreatedAt]; !ok {
		rec[FieldCreatedAt] = now
	}
	if _, ok := rec[FieldUpdatedAt]; !ok {
		rec[FieldUpdatedAt] = now
	}
}
