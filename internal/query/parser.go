package query

// token joins two adjacent sub-conditions in a composite condition.
type token int

const (
	tokenAnd token = iota + 1
	tokenOr
)

// Builder records a composite attribute condition as a flat list of
// sub-conditions interleaved with AND/OR tokens, parsed on demand.
type Builder struct {
	items  []*Node
	tokens []token
}

// Where starts a composite condition from its first sub-condition.
func Where(n *Node) *Builder {
	return &Builder{items: []*Node{n}}
}

// And appends a sub-condition joined by AND.
func (b *Builder) And(n *Node) *Builder {
	b.tokens = append(b.tokens, tokenAnd)
	b.items = append(b.items, n)
	return b
}

// Or appends a sub-condition joined by OR.
func (b *Builder) Or(n *Node) *Builder {
	b.tokens = append(b.tokens, tokenOr)
	b.items = append(b.items, n)
	return b
}

// Parse folds the recorded token stream into a binary tree. The fold runs in
// two phases: all AND-joined adjacent pairs are contracted first, left to
// right, with the combined node reinserted at the position of its operands;
// only then are the remaining OR tokens folded. AND therefore binds tighter
// than OR. NOT is already bound structurally at construction time.
func (b *Builder) Parse() (*Node, error) {
	for _, item := range b.items {
		if err := item.Err(); err != nil {
			return nil, err
		}
	}

	items := append([]*Node(nil), b.items...)
	tokens := append([]token(nil), b.tokens...)

	// Phase 1: contract AND pairs.
	i := 0
	for i < len(tokens) {
		if tokens[i] != tokenAnd {
			i++
			continue
		}
		combined := &Node{Kind: KindAnd, Left: items[i], Right: items[i+1]}
		items = append(items[:i], append([]*Node{combined}, items[i+2:]...)...)
		tokens = append(tokens[:i], tokens[i+1:]...)
	}

	// Phase 2: fold the remaining OR tokens.
	for len(tokens) > 0 {
		combined := &Node{Kind: KindOr, Left: items[0], Right: items[1]}
		items = append([]*Node{combined}, items[2:]...)
		tokens = tokens[1:]
	}

	return items[0], nil
}
