package logtree

import (
	"encoding/json"
	"strconv"
)

// Kind discriminates property leaves from containers.
type Kind int

const (
	// KindLeaf is a property leaf: one absorbed flat record.
	KindLeaf Kind = iota
	// KindContainer owns an ordered list of children and carries no
	// value of its own.
	KindContainer
)

// Node is one element of a parsed log tree.
//
// A leaf carries the Entry (key) and Value of one flat record; raw-only
// records become leaves with an empty Entry and the raw segment as
// Value. A container has no entry or value, only Children. Entity
// containers are containers whose first child is a depth-marker leaf.
type Node struct {
	Kind     Kind
	Entry    string
	Value    string
	Children []*Node
}

// NewLeaf returns a property leaf for one flat record.
func NewLeaf(entry, value string) *Node {
	return &Node{Kind: KindLeaf, Entry: entry, Value: value}
}

// NewContainer returns an empty container node.
func NewContainer() *Node {
	return &Node{Kind: KindContainer}
}

// IsContainer reports whether the node owns children.
func (n *Node) IsContainer() bool {
	return n.Kind == KindContainer
}

// Level returns the entity's depth if the node is a container whose
// first child is a depth-marker leaf with a non-negative numeric value.
func (n *Node) Level(depthKey string) (int, bool) {
	if n.Kind != KindContainer || len(n.Children) == 0 {
		return 0, false
	}
	first := n.Children[0]
	if first.Kind != KindLeaf || first.Entry != depthKey {
		return 0, false
	}
	lvl, err := strconv.Atoi(first.Value)
	if err != nil || lvl < 0 {
		return 0, false
	}
	return lvl, true
}

// Walk visits the node and every descendant in pre-order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// nodeJSON is the serialized form: {entry, value, children}. Entry and
// value are null when absent; the children key is present exactly for
// containers, which is how kinds survive a round trip.
type nodeJSON struct {
	Entry    *string  `json:"entry"`
	Value    *string  `json:"value"`
	Children *[]*Node `json:"children,omitempty"`
}

func (n *Node) MarshalJSON() ([]byte, error) {
	var out nodeJSON
	if n.Kind == KindLeaf {
		if n.Entry != "" {
			out.Entry = &n.Entry
		}
		if n.Value != "" {
			out.Value = &n.Value
		}
	} else {
		children := n.Children
		if children == nil {
			children = []*Node{}
		}
		out.Children = &children
	}
	return json.Marshal(out)
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*n = Node{}
	if in.Children != nil {
		n.Kind = KindContainer
		n.Children = *in.Children
		return nil
	}
	n.Kind = KindLeaf
	if in.Entry != nil {
		n.Entry = *in.Entry
	}
	if in.Value != nil {
		n.Value = *in.Value
	}
	return nil
}
