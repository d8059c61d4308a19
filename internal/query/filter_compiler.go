package query

import (
	"fmt"

	apperrors "github.com/allisson/strongroom/internal/errors"
)

// CompileFilter translates a parsed attribute condition tree into a filter
// expression fragment. Node kinds are matched exhaustively.
func CompileFilter(root *Node) (*Expression, error) {
	if err := root.Err(); err != nil {
		return nil, apperrors.Wrap(err, "cannot compile filter condition")
	}
	state := &compileState{}
	return state.compileNode(root)
}

func (c *compileState) compileNode(n *Node) (*Expression, error) {
	switch n.Kind {
	case KindCompare:
		return c.compileComparison(n), nil
	case KindExists:
		namePlaceholder := "#" + n.Attr.Position
		return &Expression{
			Condition: fmt.Sprintf("attribute_exists(%s)", namePlaceholder),
			Names:     map[string]string{namePlaceholder: n.Attr.Position},
		}, nil
	case KindNotExists:
		namePlaceholder := "#" + n.Attr.Position
		return &Expression{
			Condition: fmt.Sprintf("attribute_not_exists(%s)", namePlaceholder),
			Names:     map[string]string{namePlaceholder: n.Attr.Position},
		}, nil
	case KindAnd, KindOr:
		left, err := c.compileNode(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.compileNode(n.Right)
		if err != nil {
			return nil, err
		}
		op := "AND"
		if n.Kind == KindOr {
			op = "OR"
		}
		return merge(op, left, right), nil
	case KindNot:
		child, err := c.compileNode(n.Child)
		if err != nil {
			return nil, err
		}
		return &Expression{
			Condition: fmt.Sprintf("NOT (%s)", child.Condition),
			Names:     child.Names,
			Values:    child.Values,
		}, nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput,
			"unknown condition node kind %d", n.Kind)
	}
}
