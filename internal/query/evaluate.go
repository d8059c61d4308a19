package query

import "bytes"

// Record is a positional view over one stored entry, as the schema descriptor
// exposes it to the evaluator.
type Record interface {
	// Attribute returns the value at a backend position, reporting absence.
	Attribute(position string) (Value, bool)
}

// Evaluate applies the condition tree to a record in process. It backs the
// client-side re-verification of backend results: a backend is assumed capable
// of returning rows that do not satisfy the requested predicate.
func (n *Node) Evaluate(rec Record) bool {
	switch n.Kind {
	case KindCompare:
		v, ok := rec.Attribute(n.Attr.Position)
		if !ok {
			return false
		}
		c, comparable := compareValues(v, n.Value)
		if !comparable {
			return false
		}
		switch n.Op {
		case OpEqual:
			return c == 0
		case OpGreaterOrEqual:
			return c >= 0
		case OpGreater:
			return c > 0
		case OpLessOrEqual:
			return c <= 0
		case OpLess:
			return c < 0
		default:
			return false
		}
	case KindExists:
		_, ok := rec.Attribute(n.Attr.Position)
		return ok
	case KindNotExists:
		_, ok := rec.Attribute(n.Attr.Position)
		return !ok
	case KindAnd:
		return n.Left.Evaluate(rec) && n.Right.Evaluate(rec)
	case KindOr:
		return n.Left.Evaluate(rec) || n.Right.Evaluate(rec)
	case KindNot:
		return !n.Child.Evaluate(rec)
	default:
		return false
	}
}

// Evaluate applies the key condition to a record in process.
func (k *KeyCondition) Evaluate(rec Record) bool {
	if !k.Partition.Evaluate(rec) {
		return false
	}
	if k.Sort != nil {
		return k.Sort.Evaluate(rec)
	}
	return true
}

// compareValues compares two same-typed values, reporting both the ordering
// and whether the operands were comparable at all.
func compareValues(a, b Value) (int, bool) {
	if a.Type != b.Type {
		return 0, false
	}
	switch a.Type {
	case TypeString:
		return compareOrdered(a.Str, b.Str), true
	case TypeNumber:
		return compareOrdered(a.Num, b.Num), true
	case TypeBytes:
		return bytes.Compare(a.Bytes, b.Bytes), true
	default:
		return 0, false
	}
}

func compareOrdered[T int64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
