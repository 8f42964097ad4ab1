package storage

import (
	"fmt"
	"reflect"
	"strings"
)

// checkConds rejects malformed conditions before any row is examined, so
// an unknown operator (or a like with a non-string pattern) errors even
// against an empty table. The SQL builders reject the same inputs at
// statement-build time.
func checkConds(conds []Cond) error {
	for _, c := range conds {
		switch c.Op {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn:
		case OpLike:
			if _, ok := c.Value.(string); !ok {
				return fmt.Errorf("storage: like operator requires a string value, got %T", c.Value)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownOp, c.Op)
		}
	}
	return nil
}

// Match reports whether rec satisfies every condition in conds (logical
// AND). It mirrors SQL WHERE semantics and is the reference implementation
// the SQL providers must agree with.
func Match(rec Record, conds []Cond) (bool, error) {
	for _, c := range conds {
		ok, err := evalCond(rec, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalCond(rec Record, c Cond) (bool, error) {
	got := rec[c.Field]

	switch c.Op {
	case OpEq:
		return valueEqual(got, c.Value), nil
	case OpNe:
		return !valueEqual(got, c.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := valueCompare(got, c.Value)
		if !ok {
			// Incomparable values (missing field, type mismatch) never
			// satisfy an ordered condition, same as SQL NULL comparisons.
			return false, nil
		}
		switch c.Op {
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		case OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpLike:
		sub, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("storage: like operator requires a string value, got %T", c.Value)
		}
		s, ok := got.(string)
		if !ok {
			return false, nil
		}
		// Case-insensitive substring: the SQL providers lower both sides.
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub)), nil
	case OpIn:
		return valueIn(got, c.Value)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOp, c.Op)
	}
}

// valueEqual compares two scalar values, treating all numeric types as one
// domain so int64(5) from a database equals int(5) from a caller.
func valueEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

// valueCompare returns -1/0/1 and true when a and b are comparable
// (both numeric or both strings), false otherwise.
func valueCompare(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return 0, false
	}
	return strings.Compare(as, bs), true
}

// valueIn reports whether got equals any element of the set, which must be
// a slice of any element type.
func valueIn(got, set any) (bool, error) {
	if set == nil {
		return false, fmt.Errorf("storage: in operator requires a slice value")
	}
	v := reflect.ValueOf(set)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return false, fmt.Errorf("storage: in operator requires a slice value, got %T", set)
	}
	for i := 0; i < v.Len(); i++ {
		if valueEqual(got, v.Index(i).Interface()) {
			return true, nil
		}
	}
	return false, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
