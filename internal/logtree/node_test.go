package logtree

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNode_JSONRoundTrip(t *testing.T) {
	root := mustBuild(t, "Level:1\nStim.OnsetTime:100\nraw note\nLevel:2\nTrial:3")

	data, err := json.Marshal(root)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Node
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(root, &decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNode_JSONShape(t *testing.T) {
	leaf := NewLeaf("Trial", "3")
	data, err := json.Marshal(leaf)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"entry":"Trial","value":"3"}` {
		t.Errorf("unexpected leaf encoding: %s", data)
	}

	raw := NewLeaf("", "free text")
	data, err = json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"entry":null`) {
		t.Errorf("raw-only leaf should encode a null entry: %s", data)
	}

	container := NewContainer()
	data, err = json.Marshal(container)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"children":[]`) {
		t.Errorf("container should always encode children: %s", data)
	}
}

func TestNormalize_DeserializedTree(t *testing.T) {
	// A tree serialized by another tool, first entity without marker.
	payload := `{"entry":null,"value":null,"children":[
		{"entry":null,"value":null,"children":[
			{"entry":null,"value":null,"children":[
				{"entry":"Subject","value":"7"}
			]}
		]}
	]}`

	var root Node
	if err := json.Unmarshal([]byte(payload), &root); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	Normalize(&root, "Level")

	entity := root.Children[0].Children[0]
	if lvl, ok := entity.Level("Level"); !ok || lvl != 1 {
		t.Fatalf("expected synthesized level-1 marker, got %d, %v", lvl, ok)
	}
	if entity.Children[1].Entry != "Subject" {
		t.Errorf("existing leaves must shift, not vanish: %+v", entity.Children)
	}
}

func TestNode_Level(t *testing.T) {
	entity := NewContainer()
	entity.Children = append(entity.Children, NewLeaf("Level", "2"))
	if lvl, ok := entity.Level("Level"); !ok || lvl != 2 {
		t.Fatalf("expected level 2, got %d, %v", lvl, ok)
	}

	if _, ok := NewLeaf("Level", "2").Level("Level"); ok {
		t.Error("a leaf is not an entity")
	}

	bad := NewContainer()
	bad.Children = append(bad.Children, NewLeaf("Level", "-1"))
	if _, ok := bad.Level("Level"); ok {
		t.Error("negative levels are not valid markers")
	}
}
