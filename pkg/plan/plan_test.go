package plan

import (
	"bytes"
	"errors"
	"testing"
)

const mib = 1 << 20

func TestBlockArithmetic(t *testing.T) {
	cases := []struct {
		size, block int64
		count       int
		last        int64
	}{
		{0, mib, 0, 0},
		{1, mib, 1, 1},
		{mib, mib, 1, mib},
		{mib + 1, mib, 2, 1},
		{5 * mib / 2, mib, 3, mib / 2},
		{3 * mib, mib, 3, mib},
		{10, 3, 4, 1},
	}
	for _, c := range cases {
		if got := BlockCount(c.size, c.block); got != c.count {
			t.Errorf("BlockCount(%d, %d) = %d, want %d", c.size, c.block, got, c.count)
			continue
		}
		content := make([]byte, c.size)
		blocks := Split(content, c.block)
		if len(blocks) != c.count {
			t.Fatalf("Split gave %d blocks, want %d", len(blocks), c.count)
		}
		var total int64
		for i, b := range blocks {
			total += int64(len(b))
			if i < len(blocks)-1 && int64(len(b)) != c.block {
				t.Errorf("size %d: block %d has %d bytes, want %d", c.size, i, len(b), c.block)
			}
		}
		if total != c.size {
			t.Errorf("size %d: blocks sum to %d", c.size, total)
		}
		if c.count > 0 && int64(len(blocks[c.count-1])) != c.last {
			t.Errorf("size %d: last block %d bytes, want %d", c.size, len(blocks[c.count-1]), c.last)
		}
	}
}

func TestSplitKeepsByteOrder(t *testing.T) {
	content := make([]byte, 2*mib+mib/2)
	for i := range content {
		content[i] = byte(i % 251)
	}
	blocks := Split(content, mib)
	if got := bytes.Join(blocks, nil); !bytes.Equal(got, content) {
		t.Fatal("joined blocks differ from content")
	}
	start, end := BlockRange(2, int64(len(content)), mib)
	if start != 2*mib || end != int64(len(content)) {
		t.Errorf("BlockRange(2) = [%d, %d)", start, end)
	}
}

func descriptors(sizes ...int64) []BlockDescriptor {
	out := make([]BlockDescriptor, len(sizes))
	for i, s := range sizes {
		out[i] = BlockDescriptor{BlockID: "b", Ordinal: i, Size: s}
	}
	return out
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		p    BlockPlan
		size int64
		ok   bool
	}{
		{"exact", BlockPlan{Blocks: descriptors(mib, mib, mib/2)}, 5 * mib / 2, true},
		{"unsized", BlockPlan{Blocks: descriptors(0, 0)}, mib + 1, true},
		{"empty no blocks", BlockPlan{}, 0, true},
		{"empty one block", BlockPlan{Blocks: descriptors(0)}, 0, true},
		{"too few", BlockPlan{Blocks: descriptors(mib)}, mib + 1, false},
		{"too many", BlockPlan{Blocks: descriptors(mib, mib)}, mib, false},
		{"wrong last size", BlockPlan{Blocks: descriptors(mib, mib)}, mib + 1, false},
		{"wrong block size", BlockPlan{BlockSize: 64 * mib, Blocks: descriptors(0)}, 10, false},
		{"missing id", BlockPlan{Blocks: []BlockDescriptor{{}}}, 10, false},
	}
	for _, c := range cases {
		err := c.p.Validate(c.size, mib)
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && !errors.Is(err, ErrPlanMismatch) {
			t.Errorf("%s: got %v, want ErrPlanMismatch", c.name, err)
		}
	}
}

func TestReplicaTargetString(t *testing.T) {
	r := ReplicaTarget{NodeID: "dn1", Addr: "10.0.0.7:50051"}
	if r.String() != "dn1@10.0.0.7:50051" {
		t.Errorf("String() = %q", r.String())
	}
	if anon := (ReplicaTarget{Addr: "10.0.0.7:50051"}); anon.String() != "10.0.0.7:50051" {
		t.Errorf("String() = %q", anon.String())
	}
}
