package placement

import (
	"fmt"
	"testing"
)

func nodes(n int) []Node {
	var out []Node
	for i := 0; i < n; i++ {
		out = append(out, Node{ID: fmt.Sprintf("dn%d", i), Addr: fmt.Sprintf("10.0.0.%d:50051", i)})
	}
	return out
}

func TestPickNDistinct(t *testing.T) {
	s := New(nodes(5))
	for i := 0; i < 100; i++ {
		got := s.PickN(fmt.Sprintf("blk_%d", i), 3)
		if len(got) != 3 {
			t.Fatalf("got %d nodes, want 3", len(got))
		}
		seen := map[string]bool{}
		for _, n := range got {
			if seen[n.ID] {
				t.Fatalf("duplicate node %s in %v", n.ID, got)
			}
			seen[n.ID] = true
		}
	}
}

func TestPickNStable(t *testing.T) {
	a := New(nodes(4)).PickN("blk_7", 2)
	b := New(nodes(4)).PickN("blk_7", 2)
	if fmt.Sprint(a) != fmt.Sprint(b) {
		t.Fatalf("placement not deterministic: %v vs %v", a, b)
	}
}

func TestPickNCapped(t *testing.T) {
	if got := New(nodes(2)).PickN("k", 5); len(got) != 2 {
		t.Fatalf("got %d nodes, want 2", len(got))
	}
	if got := New(nil).PickN("k", 2); got != nil {
		t.Fatalf("got %v from empty set", got)
	}
	if got := New(append(nodes(1), nodes(1)...)); got.Len() != 1 {
		t.Fatalf("duplicate ids not collapsed: %d", got.Len())
	}
}

func TestRemovingNodeOnlyMovesItsKeys(t *testing.T) {
	all := nodes(5)
	before := New(all)
	after := New(all[:4]) // dn4 leaves
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("blk_%d", i)
		b := before.PickN(key, 1)[0]
		a := after.PickN(key, 1)[0]
		if b.ID != "dn4" && a.ID != b.ID {
			t.Fatalf("%s moved from %s to %s", key, b.ID, a.ID)
		}
	}
}
