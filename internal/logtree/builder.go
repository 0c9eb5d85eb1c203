package logtree

import (
	"fmt"
	"strconv"
)

// Options controls log flattening and tree construction.
type Options struct {
	EntryDelimiter string // record separator, default "\n"
	KVDelimiter    string // key/value separator, default ":"
	DepthKey       string // depth-marker key, default "Level"
}

func (o Options) withDefaults() Options {
	if o.EntryDelimiter == "" {
		o.EntryDelimiter = "\n"
	}
	if o.KVDelimiter == "" {
		o.KVDelimiter = ":"
	}
	if o.DepthKey == "" {
		o.DepthKey = "Level"
	}
	return o
}

// InvalidDepthJumpError reports a depth marker that increased the
// nesting depth by more than one level at once.
type InvalidDepthJumpError struct {
	Expected int // deepest level the next marker may declare
	Got      int
}

func (e *InvalidDepthJumpError) Error() string {
	return fmt.Sprintf("invalid depth jump: expected level <= %d, got %d", e.Expected, e.Got)
}

// Build parses a raw log payload and assembles the nested record tree.
// The returned root container holds exactly one anonymous container,
// which in turn holds all first-depth entities.
func Build(payload string, opts Options) (*Node, error) {
	opts = opts.withDefaults()
	return BuildRecords(ParseEntries(payload, opts.EntryDelimiter, opts.KVDelimiter), opts)
}

// BuildRecords assembles the tree from an already-flattened record
// sequence. Depth-marker records open a new entity container; every
// other record becomes a property leaf of the innermost open entity.
// Records preceding the first depth marker are wrapped in an implicit
// first entity whose Level leaf is synthesized by Normalize.
func BuildRecords(records []FlatRecord, opts Options) (*Node, error) {
	opts = opts.withDefaults()

	root := NewContainer()
	anon := NewContainer()
	root.Children = append(root.Children, anon)

	type frame struct {
		level int
		node  *Node
	}
	stack := []frame{{node: root}, {node: anon}}
	prev := -1 // level of the previous entity; -1 until one is seen

	top := func() *Node { return stack[len(stack)-1].node }

	for _, rec := range records {
		level, ok := depthMarker(rec, opts.DepthKey)
		if !ok {
			if prev < 0 {
				// Header records before the first marker: open the
				// implicit first entity so they nest like everything
				// else. Its marker leaf is added by Normalize.
				implicit := NewContainer()
				anon.Children = append(anon.Children, implicit)
				stack = append(stack, frame{level: 1, node: implicit})
				prev = 1
			}
			t := top()
			t.Children = append(t.Children, leafFor(rec))
			continue
		}

		entity := NewContainer()
		entity.Children = append(entity.Children, NewLeaf(opts.DepthKey, rec.Value))

		switch {
		case prev < 0 || level == prev+1:
			// First entity, or descending exactly one level: the new
			// entity nests inside the current frame.
		case level == prev:
			// Sibling at the same depth.
			stack = stack[:len(stack)-1]
		case level < prev:
			// Climbing back out: unwind to the frame owning this depth.
			track := prev
			for len(stack) > 2 && track > level {
				stack = stack[:len(stack)-1]
				track--
			}
			stack = stack[:len(stack)-1]
		default:
			return nil, &InvalidDepthJumpError{Expected: prev + 1, Got: level}
		}

		t := top()
		t.Children = append(t.Children, entity)
		stack = append(stack, frame{level: level, node: entity})
		prev = level
	}

	Normalize(root, opts.DepthKey)
	return root, nil
}

// Normalize repairs the first entity of the anonymous container: if it
// lacks a depth-marker leaf, one with value "1" is inserted at position
// zero. Build applies this automatically; it is exported so trees
// deserialized from JSON can be repaired the same way.
func Normalize(root *Node, depthKey string) {
	if depthKey == "" {
		depthKey = "Level"
	}
	if root == nil || len(root.Children) == 0 {
		return
	}
	anon := root.Children[0]
	for _, c := range anon.Children {
		if !c.IsContainer() {
			continue
		}
		if _, ok := c.Level(depthKey); !ok {
			c.Children = append([]*Node{NewLeaf(depthKey, "1")}, c.Children...)
		}
		return
	}
}

func depthMarker(rec FlatRecord, depthKey string) (int, bool) {
	if !rec.Keyed || rec.Key != depthKey {
		return 0, false
	}
	lvl, err := strconv.Atoi(rec.Value)
	if err != nil || lvl < 0 {
		return 0, false
	}
	return lvl, true
}

func leafFor(rec FlatRecord) *Node {
	if rec.Keyed {
		return NewLeaf(rec.Key, rec.Value)
	}
	return NewLeaf("", rec.Raw)
}
