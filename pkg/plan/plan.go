// Package plan describes how a file maps onto replicated blocks: the BlockPlan returned by the
// metadata authority and the arithmetic that ties block ordinals to byte ranges.
package plan

import (
	"errors"
	"fmt"
)

// DefaultBlockSize must match the block size the metadata authority allocates with.
const DefaultBlockSize int64 = 1 << 20

// ErrPlanMismatch is returned when a plan does not describe the content it is applied to.
var ErrPlanMismatch = errors.New("block plan does not match content")

// ReplicaTarget is one storage node expected to hold a copy of a block.
type ReplicaTarget struct {
	NodeID string `json:"node_id"`
	Addr   string `json:"addr"`
}

func (r ReplicaTarget) String() string {
	if r.NodeID == "" {
		return r.Addr
	}
	return r.NodeID + "@" + r.Addr
}

// BlockDescriptor is one block of a plan. Replicas keep the authority's preference order.
type BlockDescriptor struct {
	BlockID  string          `json:"block_id"`
	Ordinal  int             `json:"ordinal"`
	Size     int64           `json:"size"` // 0 when the authority did not say
	Replicas []ReplicaTarget `json:"replicas"`
}

// BlockPlan is the ordered list of blocks of one file. It is only valid for the single
// transfer it was fetched for.
type BlockPlan struct {
	Path      string            `json:"path"`
	OwnerID   string            `json:"owner_id,omitempty"`
	Size      int64             `json:"size"`
	BlockSize int64             `json:"block_size"`
	Blocks    []BlockDescriptor `json:"blocks"`
}

// BlockCount returns ceil(size / blockSize).
func BlockCount(size, blockSize int64) int {
	if size <= 0 || blockSize <= 0 {
		return 0
	}
	return int((size + blockSize - 1) / blockSize)
}

// BlockRange returns the byte range [start, end) covered by ordinal.
func BlockRange(ordinal int, size, blockSize int64) (start, end int64) {
	start = int64(ordinal) * blockSize
	end = start + blockSize
	if end > size {
		end = size
	}
	if start > size {
		start = size
	}
	return start, end
}

// Split partitions content into blockSize pieces. The pieces alias content.
func Split(content []byte, blockSize int64) [][]byte {
	n := BlockCount(int64(len(content)), blockSize)
	blocks := make([][]byte, n)
	for i := range blocks {
		start, end := BlockRange(i, int64(len(content)), blockSize)
		blocks[i] = content[start:end]
	}
	return blocks
}

// Validate checks that p can carry size bytes split into blockSize blocks. A zero-length file
// may be described by no blocks or by a single empty block.
func (p *BlockPlan) Validate(size, blockSize int64) error {
	if p.BlockSize != 0 && p.BlockSize != blockSize {
		return fmt.Errorf("%w: authority block size %d, client block size %d", ErrPlanMismatch, p.BlockSize, blockSize)
	}
	want := BlockCount(size, blockSize)
	if size == 0 && len(p.Blocks) == 1 {
		want = 1
	}
	if len(p.Blocks) != want {
		return fmt.Errorf("%w: %d blocks planned for %d bytes, want %d", ErrPlanMismatch, len(p.Blocks), size, want)
	}
	for i, b := range p.Blocks {
		if b.BlockID == "" {
			return fmt.Errorf("%w: block %d has no id", ErrPlanMismatch, i)
		}
		if b.Size == 0 {
			continue
		}
		start, end := BlockRange(i, size, blockSize)
		if b.Size != end-start {
			return fmt.Errorf("%w: block %d planned with %d bytes, content has %d", ErrPlanMismatch, i, b.Size, end-start)
		}
	}
	return nil
}
