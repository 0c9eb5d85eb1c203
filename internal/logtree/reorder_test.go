package logtree

import (
	"math"
	"strings"
	"testing"
)

func TestOnset_LeafSelection(t *testing.T) {
	n := NewContainer()
	n.Children = []*Node{
		NewLeaf("Level", "1"),
		NewLeaf("Stim.OnsetDelay", "3"),
		NewLeaf("Stim.OnsetToOnsetAck", "7"),
		NewLeaf("Stim.OnsetTime", "100.5"),
	}
	if v := Onset(n); v != 100.5 {
		t.Errorf("expected 100.5 (ack/delay entries excluded), got %g", v)
	}
}

func TestOnset_FirstFrameAndRecursion(t *testing.T) {
	inner := NewContainer()
	inner.Children = []*Node{NewLeaf("Display.FirstFrameTime", "42")}
	outer := NewContainer()
	outer.Children = []*Node{NewLeaf("Name", "x"), inner}
	if v := Onset(outer); v != 42 {
		t.Errorf("expected recursion to find 42, got %g", v)
	}
}

func TestOnset_MissingIsInfinite(t *testing.T) {
	n := NewContainer()
	n.Children = []*Node{NewLeaf("Stim.OnsetTime", "soon"), NewLeaf("A", "1")}
	if v := Onset(n); !math.IsInf(v, 1) {
		t.Errorf("expected +Inf for unparsable onsets, got %g", v)
	}
}

func TestReorder_ReparentsByOnset(t *testing.T) {
	// Two blocks whose trials were logged under the wrong block: the
	// trial at 150 belongs to the block starting at 100, and vice versa.
	root := mustBuild(t, strings.Join([]string{
		"Level:1", "Block.OnsetTime:0",
		"Level:2", "Trial.OnsetTime:150",
		"Level:1", "Block.OnsetTime:100",
		"Level:2", "Trial.OnsetTime:50",
	}, "\n"))

	before := nodeSet(root)
	Reorder(root, "Level", nil)
	after := nodeSet(root)

	if len(before) != len(after) {
		t.Fatalf("reorder changed node count: %d -> %d", len(before), len(after))
	}
	for n := range before {
		if !after[n] {
			t.Fatal("reorder lost a node")
		}
	}

	anon := root.Children[0]
	b1, b2 := anon.Children[0], anon.Children[1]
	if Onset(b1) > Onset(b2) {
		t.Fatalf("blocks not in chronological order: %g, %g", Onset(b1), Onset(b2))
	}

	t1 := lastContainer(t, b1)
	t2 := lastContainer(t, b2)
	if v := Onset(t1); v != 50 {
		t.Errorf("block at 0 should own the trial at 50, got %g", v)
	}
	if v := Onset(t2); v != 150 {
		t.Errorf("block at 100 should own the trial at 150, got %g", v)
	}
}

func TestReorder_SortsWithinParentWhenAParentLacksOnset(t *testing.T) {
	root := mustBuild(t, strings.Join([]string{
		"Level:1", // no onset anywhere in this entity
		"Level:1", "Block.OnsetTime:10",
		"Level:2", "Trial.OnsetTime:30",
		"Level:2", "Trial.OnsetTime:20",
	}, "\n"))

	Reorder(root, "Level", nil)

	anon := root.Children[0]
	p2 := anon.Children[1]
	var trials []*Node
	for _, c := range p2.Children {
		if c.IsContainer() {
			trials = append(trials, c)
		}
	}
	if len(trials) != 2 {
		t.Fatalf("expected the trials to stay with their parent, got %d", len(trials))
	}
	if Onset(trials[0]) != 20 || Onset(trials[1]) != 30 {
		t.Errorf("trials not sorted in place: %g, %g", Onset(trials[0]), Onset(trials[1]))
	}
	// Leaves keep their slots; the marker leaf stays first.
	if lvl, ok := p2.Level("Level"); !ok || lvl != 1 {
		t.Errorf("marker leaf moved: %d, %v", lvl, ok)
	}
	if p2.Children[1].Entry != "Block.OnsetTime" {
		t.Errorf("property leaf moved: %+v", p2.Children[1])
	}
}

func TestReorder_SkipsLevelWithoutTimestamps(t *testing.T) {
	root := mustBuild(t, strings.Join([]string{
		"Level:1", "Block.OnsetTime:0",
		"Level:2", "Trial:silent",
		"Level:2", "Trial.OnsetTime:5",
	}, "\n"))

	anon := root.Children[0]
	block := anon.Children[0]
	wantOrder := []*Node{block.Children[2], block.Children[3]}

	Reorder(root, "Level", nil)

	if block.Children[2] != wantOrder[0] || block.Children[3] != wantOrder[1] {
		t.Error("level with an onset-less entity must keep log order")
	}
}

func nodeSet(root *Node) map[*Node]bool {
	set := make(map[*Node]bool)
	root.Walk(func(n *Node) { set[n] = true })
	return set
}

func lastContainer(t *testing.T, n *Node) *Node {
	t.Helper()
	for i := len(n.Children) - 1; i >= 0; i-- {
		if n.Children[i].IsContainer() {
			return n.Children[i]
		}
	}
	t.Fatal("no container child")
	return nil
}
