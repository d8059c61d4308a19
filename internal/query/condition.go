// Package query implements the typed condition language used for filtering and
// key matching against backend stores: a fluent builder producing an untyped
// condition tree, a parser folding composite conditions into a binary tree, and
// compilers translating the tree into backend expression fragments.
package query

import (
	"fmt"

	apperrors "github.com/allisson/strongroom/internal/errors"
)

// AttributeType is the type of an attribute or literal value. Comparisons are
// only valid between operands of the same type.
type AttributeType int

const (
	// TypeString compares lexicographically.
	TypeString AttributeType = iota + 1
	// TypeNumber compares numerically.
	TypeNumber
	// TypeBytes compares bytewise.
	TypeBytes
)

// String implements fmt.Stringer.
func (t AttributeType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBytes:
		return "bytes"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Role is the indexing role of an attribute.
type Role int

const (
	// RolePartitionKey marks the partition key attribute.
	RolePartitionKey Role = iota + 1
	// RoleSortKey marks the sort key attribute.
	RoleSortKey
	// RoleAttribute marks an ordinary, non-key attribute.
	RoleAttribute
)

// Attribute is a typed reference to a named backend position.
type Attribute struct {
	// Position is the backend attribute name (e.g. "0").
	Position string
	// Name is the logical field name, used in diagnostics.
	Name string
	// Type constrains which literals the attribute can be compared to.
	Type AttributeType
	// Role is the attribute's indexing role.
	Role Role
	// Optional marks attributes that may be absent from an entry; only
	// optional attributes support existence checks.
	Optional bool
}

// Value is a typed literal.
type Value struct {
	Type  AttributeType
	Str   string
	Num   int64
	Bytes []byte
}

// StringValue returns a string literal.
func StringValue(s string) Value {
	return Value{Type: TypeString, Str: s}
}

// NumberValue returns a numeric literal.
func NumberValue(n int64) Value {
	return Value{Type: TypeNumber, Num: n}
}

// BytesValue returns a byte-array literal.
func BytesValue(b []byte) Value {
	return Value{Type: TypeBytes, Bytes: b}
}

// Operator is a comparison operator.
type Operator int

const (
	// OpEqual is "=".
	OpEqual Operator = iota + 1
	// OpGreaterOrEqual is ">=".
	OpGreaterOrEqual
	// OpGreater is ">".
	OpGreater
	// OpLessOrEqual is "<=".
	OpLessOrEqual
	// OpLess is "<".
	OpLess
)

// symbol returns the backend expression symbol for the operator.
func (o Operator) symbol() string {
	switch o {
	case OpEqual:
		return "="
	case OpGreaterOrEqual:
		return ">="
	case OpGreater:
		return ">"
	case OpLessOrEqual:
		return "<="
	case OpLess:
		return "<"
	default:
		return "?"
	}
}

// NodeKind is the closed set of condition tree node kinds.
type NodeKind int

const (
	// KindCompare is a binary comparison between an attribute and a literal.
	KindCompare NodeKind = iota + 1
	// KindExists checks that an optional attribute is present.
	KindExists
	// KindNotExists checks that an optional attribute is absent.
	KindNotExists
	// KindAnd is the conjunction of Left and Right.
	KindAnd
	// KindOr is the disjunction of Left and Right.
	KindOr
	// KindNot negates Child.
	KindNot
)

// Node is one node of the condition tree, a tagged variant over NodeKind.
// Construction errors (type mismatches, misused roles) are carried on the node
// and surfaced when the tree is parsed or compiled.
type Node struct {
	Kind  NodeKind
	Op    Operator
	Attr  *Attribute
	Value Value
	Left  *Node
	Right *Node
	Child *Node

	err error
}

// Err returns the first construction error in the subtree, if any.
func (n *Node) Err() error {
	if n == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "nil condition")
	}
	if n.err != nil {
		return n.err
	}
	for _, child := range []*Node{n.Left, n.Right, n.Child} {
		if child != nil {
			if err := child.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// compare builds a comparison node, recording a construction error on operand
// type mismatch.
func (a *Attribute) compare(op Operator, v Value) *Node {
	node := &Node{Kind: KindCompare, Op: op, Attr: a, Value: v}
	if a.Type != v.Type {
		node.err = apperrors.Wrapf(apperrors.ErrInvalidInput,
			"cannot compare %s attribute %q to %s literal", a.Type, a.Name, v.Type)
	}
	return node
}

// Equal builds an equality comparison.
func (a *Attribute) Equal(v Value) *Node {
	return a.compare(OpEqual, v)
}

// GreaterOrEqual builds a ">=" comparison.
func (a *Attribute) GreaterOrEqual(v Value) *Node {
	return a.compare(OpGreaterOrEqual, v)
}

// Greater builds a ">" comparison.
func (a *Attribute) Greater(v Value) *Node {
	return a.compare(OpGreater, v)
}

// LessOrEqual builds a "<=" comparison.
func (a *Attribute) LessOrEqual(v Value) *Node {
	return a.compare(OpLessOrEqual, v)
}

// Less builds a "<" comparison.
func (a *Attribute) Less(v Value) *Node {
	return a.compare(OpLess, v)
}

// Exists builds a presence check. Only optional attributes can be absent.
func (a *Attribute) Exists() *Node {
	node := &Node{Kind: KindExists, Attr: a}
	if !a.Optional {
		node.err = apperrors.Wrapf(apperrors.ErrInvalidInput,
			"existence check on required attribute %q", a.Name)
	}
	return node
}

// NotExists builds an absence check. Only optional attributes can be absent.
func (a *Attribute) NotExists() *Node {
	node := &Node{Kind: KindNotExists, Attr: a}
	if !a.Optional {
		node.err = apperrors.Wrapf(apperrors.ErrInvalidInput,
			"existence check on required attribute %q", a.Name)
	}
	return node
}

// Not negates the condition. Negation binds structurally at construction: it
// wraps exactly the node passed here, never a composite built afterwards.
func Not(n *Node) *Node {
	return &Node{Kind: KindNot, Child: n}
}

// KeyCondition constrains the indexed keys: exactly one partition-key
// equality, optionally conjoined with one sort-key comparison.
type KeyCondition struct {
	// Partition is an equality comparison on the partition key attribute.
	Partition *Node
	// Sort is an optional comparison on the sort key attribute.
	Sort *Node

	err error
}

// NewKeyCondition builds a key condition from a partition-key equality.
func NewKeyCondition(partition *Node) *KeyCondition {
	kc := &KeyCondition{Partition: partition}
	if err := partition.Err(); err != nil {
		kc.err = err
		return kc
	}
	if partition.Kind != KindCompare || partition.Op != OpEqual {
		kc.err = apperrors.Wrap(apperrors.ErrInvalidInput,
			"key condition requires a partition-key equality")
		return kc
	}
	if partition.Attr.Role != RolePartitionKey {
		kc.err = apperrors.Wrapf(apperrors.ErrInvalidInput,
			"attribute %q is not the partition key", partition.Attr.Name)
	}
	return kc
}

// WithSort conjoins a sort-key comparison (EQ, GE, GT, LE or LT).
func (k *KeyCondition) WithSort(sort *Node) *KeyCondition {
	if k.err != nil {
		return k
	}
	if err := sort.Err(); err != nil {
		k.err = err
		return k
	}
	if sort.Kind != KindCompare {
		k.err = apperrors.Wrap(apperrors.ErrInvalidInput,
			"sort condition must be a comparison")
		return k
	}
	if sort.Attr.Role != RoleSortKey {
		k.err = apperrors.Wrapf(apperrors.ErrInvalidInput,
			"attribute %q is not the sort key", sort.Attr.Name)
		return k
	}
	k.Sort = sort
	return k
}

// Err returns the first construction error, if any.
func (k *KeyCondition) Err() error {
	if k == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "nil key condition")
	}
	return k.err
}
