package query

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	apperrors "github.com/allisson/strongroom/internal/errors"
)

// Expression is a compiled backend expression fragment: the condition string
// plus its placeholder name and value maps. Attribute names are always aliased
// through "#" placeholders and literals through ":" placeholders, so compiled
// expressions can never collide with reserved backend words.
type Expression struct {
	// Condition is the expression string with placeholders.
	Condition string
	// Names maps "#position" placeholders to attribute positions.
	Names map[string]string
	// Values maps ":lettercode" placeholders to literal values.
	Values map[string]types.AttributeValue
}

// compileState allocates literal placeholders within one compile pass. The
// counter is scoped to a single compilation, which is what makes placeholder
// collisions during map merges impossible.
type compileState struct {
	counter int
}

func (c *compileState) nextValuePlaceholder() string {
	code := letterCode(c.counter)
	c.counter++
	return ":" + code
}

// compileComparison renders a single comparison node into a fragment.
func (c *compileState) compileComparison(n *Node) *Expression {
	namePlaceholder := "#" + n.Attr.Position
	valuePlaceholder := c.nextValuePlaceholder()
	return &Expression{
		Condition: fmt.Sprintf("%s %s %s", namePlaceholder, n.Op.symbol(), valuePlaceholder),
		Names:     map[string]string{namePlaceholder: n.Attr.Position},
		Values:    map[string]types.AttributeValue{valuePlaceholder: attributeValue(n.Value)},
	}
}

// merge combines two fragments with a binary operator, parenthesizing both
// operands and merging the name/value maps (later entries win on collision;
// collisions cannot occur within one compile pass).
func merge(op string, left, right *Expression) *Expression {
	names := make(map[string]string, len(left.Names)+len(right.Names))
	values := make(map[string]types.AttributeValue, len(left.Values)+len(right.Values))
	for _, e := range []*Expression{left, right} {
		for k, v := range e.Names {
			names[k] = v
		}
		for k, v := range e.Values {
			values[k] = v
		}
	}
	return &Expression{
		Condition: fmt.Sprintf("(%s) %s (%s)", left.Condition, op, right.Condition),
		Names:     names,
		Values:    values,
	}
}

// CompileKeyCondition translates a key condition into a key expression
// fragment for an indexed lookup.
func CompileKeyCondition(k *KeyCondition) (*Expression, error) {
	if err := k.Err(); err != nil {
		return nil, apperrors.Wrap(err, "cannot compile key condition")
	}
	state := &compileState{}
	return state.compileKeyCondition(k), nil
}

func (c *compileState) compileKeyCondition(k *KeyCondition) *Expression {
	expr := c.compileComparison(k.Partition)
	if k.Sort != nil {
		expr = merge("AND", expr, c.compileComparison(k.Sort))
	}
	return expr
}

// CompileQuery compiles a key condition and an optional attribute filter in a
// single pass, so their literal placeholders stay distinct when the backend
// call shares one value map across both expressions.
func CompileQuery(k *KeyCondition, attr *Node) (key, filter *Expression, err error) {
	if err := k.Err(); err != nil {
		return nil, nil, apperrors.Wrap(err, "cannot compile key condition")
	}
	state := &compileState{}
	key = state.compileKeyCondition(k)
	if attr != nil {
		if err := attr.Err(); err != nil {
			return nil, nil, apperrors.Wrap(err, "cannot compile filter condition")
		}
		filter, err = state.compileNode(attr)
		if err != nil {
			return nil, nil, err
		}
	}
	return key, filter, nil
}
