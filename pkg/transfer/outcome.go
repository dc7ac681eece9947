package transfer

import (
	"errors"
	"fmt"

	"griddfs/pkg/dfspath"
	"griddfs/pkg/plan"
)

// ErrShortBlock marks a read whose length disagrees with the planned block size.
var ErrShortBlock = errors.New("block length differs from plan")

// ReplicaAttempt is the outcome of one call against one replica of a block.
type ReplicaAttempt struct {
	Index  int // position in the authority's replica list
	Target plan.ReplicaTarget
	Err    error
}

func (a ReplicaAttempt) OK() bool { return a.Err == nil }

// BlockWrite is the fan-out outcome of one block, one attempt per replica in plan order.
type BlockWrite struct {
	Ordinal  int
	BlockID  string
	Size     int
	Attempts []ReplicaAttempt
}

func (b BlockWrite) Succeeded() int {
	n := 0
	for _, a := range b.Attempts {
		if a.OK() {
			n++
		}
	}
	return n
}

func (b BlockWrite) Failed() int { return len(b.Attempts) - b.Succeeded() }

// Committed is the at-least-one-of-N durability rule.
func (b BlockWrite) Committed() bool { return b.Succeeded() > 0 }

type UploadResult struct {
	Path   dfspath.Path
	Bytes  int64
	Blocks []BlockWrite
	// Compensated counts replica copies removed after an aborted upload.
	Compensated int
	// Unregistered reports that an aborted upload's file entry was removed from the authority.
	Unregistered bool
}

// Committed lists the blocks that reached at least one replica. After an aborted upload these
// stay live on their replicas unless compensating deletes are enabled.
func (r *UploadResult) Committed() []BlockWrite {
	var out []BlockWrite
	for _, b := range r.Blocks {
		if b.Committed() {
			out = append(out, b)
		}
	}
	return out
}

// BlockRead records which replica served a block and the attempts that failed before it.
type BlockRead struct {
	Ordinal     int
	BlockID     string
	Size        int
	ServedBy    plan.ReplicaTarget
	ServedIndex int
	Failed      []ReplicaAttempt
}

type DownloadResult struct {
	Path    dfspath.Path
	OwnerID string
	Content []byte
	Blocks  []BlockRead
}

func attemptErrors(attempts []ReplicaAttempt) []error {
	var errs []error
	for _, a := range attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// BlockCommitError aborts an upload: no replica of the block accepted the write.
type BlockCommitError struct {
	Ordinal  int
	BlockID  string
	Attempts []ReplicaAttempt
}

func (e *BlockCommitError) Error() string {
	return fmt.Sprintf("block %d (%s): no replica accepted the write, %d attempted", e.Ordinal, e.BlockID, len(e.Attempts))
}

func (e *BlockCommitError) Unwrap() []error { return attemptErrors(e.Attempts) }

// BlockUnavailableError aborts a download: every replica of the block failed to serve it.
type BlockUnavailableError struct {
	Ordinal  int
	BlockID  string
	Attempts []ReplicaAttempt
}

func (e *BlockUnavailableError) Error() string {
	return fmt.Sprintf("block %d (%s): no replica could serve the read, %d attempted", e.Ordinal, e.BlockID, len(e.Attempts))
}

func (e *BlockUnavailableError) Unwrap() []error { return attemptErrors(e.Attempts) }
