package logtree

import (
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Onset returns the first usable timestamp in the node's subtree: the
// direct property leaves are scanned for an onset-bearing entry with a
// numeric value, then each container child is searched recursively in
// order. Nodes without any usable timestamp report +Inf.
func Onset(n *Node) float64 {
	for _, c := range n.Children {
		if c.Kind != KindLeaf || !IsOnsetEntry(c.Entry) {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64); err == nil {
			return v
		}
	}
	for _, c := range n.Children {
		if c.Kind != KindContainer {
			continue
		}
		if v := Onset(c); !math.IsInf(v, 1) {
			return v
		}
	}
	return math.Inf(1)
}

// IsOnsetEntry reports whether a leaf entry names a timestamp usable
// for temporal ordering. Acknowledgement and delay entries also carry
// times but describe hardware latency, not event order.
func IsOnsetEntry(entry string) bool {
	e := strings.ToLower(entry)
	if strings.Contains(e, "ack") || strings.Contains(e, "delay") {
		return false
	}
	return strings.Contains(e, "onset") || strings.Contains(e, "firstframe")
}

// Reorder rewrites the tree so sibling order reflects chronological
// onset order instead of log order. Levels are processed bottom of the
// hierarchy first (1..max). At each level, when every parent has a
// usable onset the level's entities are detached and reassigned to the
// parent with the greatest onset not after their own; otherwise each
// parent's entities are stable-sorted in place. A level where any
// entity lacks an onset is skipped. Nodes are never created, destroyed,
// or duplicated.
func Reorder(root *Node, depthKey string, log *slog.Logger) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if depthKey == "" {
		depthKey = "Level"
	}
	if root == nil || len(root.Children) == 0 {
		return
	}
	anon := root.Children[0]

	maxLevel := 0
	root.Walk(func(n *Node) {
		if lvl, ok := n.Level(depthKey); ok && lvl > maxLevel {
			maxLevel = lvl
		}
	})

	for level := 1; level <= maxLevel; level++ {
		var children []*Node
		parentOf := make(map[*Node]*Node)
		walkWithParent(root, func(parent, n *Node) {
			if lvl, ok := n.Level(depthKey); ok && lvl == level {
				children = append(children, n)
				parentOf[n] = parent
			}
		})
		if len(children) == 0 {
			continue
		}

		var parents []*Node
		if level == 1 {
			parents = []*Node{anon}
		} else {
			walkWithParent(root, func(_, n *Node) {
				if lvl, ok := n.Level(depthKey); ok && lvl == level-1 {
					parents = append(parents, n)
				}
			})
		}

		onsets := make(map[*Node]float64, len(children)+len(parents))
		usable := true
		for _, c := range children {
			v := Onset(c)
			if math.IsInf(v, 1) {
				usable = false
				break
			}
			onsets[c] = v
		}
		if !usable {
			log.Warn("skipping temporal reorder, entity without onset", "level", level)
			continue
		}

		allParents := true
		for _, p := range parents {
			v := Onset(p)
			onsets[p] = v
			if math.IsInf(v, 1) {
				allParents = false
			}
		}

		if allParents {
			reparentByOnset(children, parents, parentOf, onsets)
		} else {
			sortWithinParents(children, parentOf, onsets, depthKey, level)
		}
	}
}

// reparentByOnset detaches every entity of the level and reassigns it,
// in onset order, to the parent with the greatest onset still at or
// before its own. The parent pointer only ever advances.
func reparentByOnset(children, parents []*Node, parentOf map[*Node]*Node, onsets map[*Node]float64) {
	for _, c := range children {
		detach(parentOf[c], c)
	}

	sortedChildren := append([]*Node(nil), children...)
	sort.SliceStable(sortedChildren, func(i, j int) bool {
		return onsets[sortedChildren[i]] < onsets[sortedChildren[j]]
	})
	sortedParents := append([]*Node(nil), parents...)
	sort.SliceStable(sortedParents, func(i, j int) bool {
		return onsets[sortedParents[i]] < onsets[sortedParents[j]]
	})

	pi := 0
	for _, c := range sortedChildren {
		for pi+1 < len(sortedParents) && onsets[sortedParents[pi+1]] <= onsets[c] {
			pi++
		}
		p := sortedParents[pi]
		p.Children = append(p.Children, c)
	}
}

// sortWithinParents stable-sorts each parent's entities of the level by
// onset, in place: the entities swap positions among themselves while
// every other child keeps its slot.
func sortWithinParents(children []*Node, parentOf map[*Node]*Node, onsets map[*Node]float64, depthKey string, level int) {
	done := make(map[*Node]bool)
	for _, c := range children {
		p := parentOf[c]
		if done[p] {
			continue
		}
		done[p] = true

		var idx []int
		for i, ch := range p.Children {
			if lvl, ok := ch.Level(depthKey); ok && lvl == level {
				idx = append(idx, i)
			}
		}
		nodes := make([]*Node, len(idx))
		for i, j := range idx {
			nodes[i] = p.Children[j]
		}
		sort.SliceStable(nodes, func(a, b int) bool {
			return onsets[nodes[a]] < onsets[nodes[b]]
		})
		for i, j := range idx {
			p.Children[j] = nodes[i]
		}
	}
}

func detach(parent, child *Node) {
	for i, c := range parent.Children {
		if c == child {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return
		}
	}
}

func walkWithParent(n *Node, fn func(parent, child *Node)) {
	for _, c := range n.Children {
		fn(n, c)
		walkWithParent(c, fn)
	}
}
