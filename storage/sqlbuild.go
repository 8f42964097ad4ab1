package storage

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// identPattern is the whitelist for table and column names interpolated
// into SQL text. Values always travel as bind parameters; identifiers
// cannot, so they are validated instead.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrBadIdentifier, name)
	}
	return nil
}

// placeholderFunc renders the bind-parameter marker for position n
// (1-based): "?" for SQLite, "$n" for Postgres.
type placeholderFunc func(n int) string

func sqlitePlaceholder(int) string     { return "?" }
func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// recordColumns returns the record's field names sorted for deterministic
// statement text, each validated as an identifier.
func recordColumns(rec Record) ([]string, error) {
	cols := make([]string, 0, len(rec))
	for k := range rec {
		if err := checkIdent(k); err != nil {
			return nil, err
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols, nil
}

// buildWhere renders the WHERE clause for conds, appending bind values to
// args. start is the 1-based position of the first new placeholder.
func buildWhere(conds []Cond, ph placeholderFunc, start int, args []any) (string, []any, error) {
	if len(conds) == 0 {
		return "", args, nil
	}

	var parts []string
	n := start
	for _, c := range conds {
		if err := checkIdent(c.Field); err != nil {
			return "", nil, err
		}
		switch c.Op {
		case OpEq:
			parts = append(parts, fmt.Sprintf("%s = %s", c.Field, ph(n)))
			args = append(args, c.Value)
			n++
		case OpNe:
			parts = append(parts, fmt.Sprintf("%s != %s", c.Field, ph(n)))
			args = append(args, c.Value)
			n++
		case OpGt, OpGte, OpLt, OpLte:
			op := map[Op]string{OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<="}[c.Op]
			parts = append(parts, fmt.Sprintf("%s %s %s", c.Field, op, ph(n)))
			args = append(args, c.Value)
			n++
		case OpLike:
			sub, ok := c.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("storage: like operator requires a string value, got %T", c.Value)
			}
			// Both sides lowered: SQLite's LIKE folds only ASCII and
			// Postgres's is case-sensitive, so neither default matches the
			// reference evaluator on its own.
			parts = append(parts, fmt.Sprintf(`lower(%s) LIKE %s ESCAPE '\'`, c.Field, ph(n)))
			args = append(args, "%"+escapeLike(strings.ToLower(sub))+"%")
			n++
		case OpIn:
			vals, err := sliceValues(c.Value)
			if err != nil {
				return "", nil, err
			}
			if len(vals) == 0 {
				// Empty set matches nothing.
				parts = append(parts, "1 = 0")
				continue
			}
			marks := make([]string, len(vals))
			for i, v := range vals {
				marks[i] = ph(n)
				args = append(args, v)
				n++
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", c.Field, strings.Join(marks, ", ")))
		default:
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownOp, c.Op)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// buildTail renders ORDER BY / LIMIT / OFFSET. Limit and Offset are plain
// ints and safe to inline. needLimitForOffset is true for SQLite, which
// rejects OFFSET without a preceding LIMIT (-1 = unbounded); Postgres
// accepts a bare OFFSET.
func buildTail(q *Query, needLimitForOffset bool) (string, error) {
	if q == nil {
		return "", nil
	}
	var b strings.Builder
	if q.Sort != nil {
		if err := checkIdent(q.Sort.Field); err != nil {
			return "", err
		}
		dir := "ASC"
		if q.Sort.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", q.Sort.Field, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	} else if q.Offset > 0 && needLimitForOffset {
		b.WriteString(" LIMIT -1")
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}
	return b.String(), nil
}

func sliceValues(v any) ([]any, error) {
	if v == nil {
		return nil, fmt.Errorf("storage: in operator requires a slice value")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("storage: in operator requires a slice value, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
