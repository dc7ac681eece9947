package transfer

import (
	"context"
	"fmt"
	"time"

	"griddfs/pkg/dfspath"
	"griddfs/pkg/plan"
	"griddfs/pkg/session"

	"golang.org/x/sync/errgroup"
)

// Upload stores content at path. Blocks are written in ordinal order; each block goes to every
// replica of its descriptor and commits once any replica accepts it. The first block that no
// replica accepts aborts the upload with a *BlockCommitError; the returned result still lists
// the blocks committed before it. An aborted upload removes the file from the authority, so
// the same upload can be run again.
func (e *Engine) Upload(ctx context.Context, sess session.Session, path dfspath.Path, content []byte) (*UploadResult, error) {
	size := int64(len(content))
	p, err := e.authority.CreateFile(ctx, sess, path, size)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(size, e.blockSize); err != nil {
		e.unregister(ctx, sess, path)
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	blocks := plan.Split(content, e.blockSize)
	if len(p.Blocks) == 1 && len(blocks) == 0 {
		blocks = [][]byte{{}}
	}

	res := &UploadResult{Path: path}
	for i, desc := range p.Blocks {
		w := e.writeBlock(ctx, i, desc, blocks[i])
		res.Blocks = append(res.Blocks, w)
		if err := ctx.Err(); err != nil {
			e.abort(ctx, sess, res)
			return res, err
		}
		if !w.Committed() {
			err := &BlockCommitError{Ordinal: i, BlockID: desc.BlockID, Attempts: w.Attempts}
			e.log.Error().Err(err).
				Str("path", path.String()).
				Int("ordinal", i).
				Int("committed_blocks", len(res.Committed())).
				Msg("upload aborted")
			e.abort(ctx, sess, res)
			return res, err
		}
		res.Bytes += int64(w.Size)
	}

	e.metrics.transferred("upload", res.Bytes)
	e.log.Info().
		Str("path", path.String()).
		Int64("bytes", res.Bytes).
		Int("blocks", len(res.Blocks)).
		Msg("upload complete")
	return res, nil
}

func (e *Engine) writeBlock(ctx context.Context, ordinal int, desc plan.BlockDescriptor, data []byte) BlockWrite {
	defer e.metrics.block("upload", time.Now())

	w := BlockWrite{
		Ordinal:  ordinal,
		BlockID:  desc.BlockID,
		Size:     len(data),
		Attempts: make([]ReplicaAttempt, len(desc.Replicas)),
	}
	limit := len(desc.Replicas)
	if e.writeParallelism > 0 && e.writeParallelism < limit {
		limit = e.writeParallelism
	}
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for j, target := range desc.Replicas {
		g.Go(func() error {
			w.Attempts[j] = ReplicaAttempt{Index: j, Target: target, Err: e.writeReplica(ctx, target, desc.BlockID, data)}
			return nil
		})
	}
	_ = g.Wait()

	for _, a := range w.Attempts {
		e.metrics.replicaWrite(a.Err)
		if a.Err != nil {
			e.log.Warn().Err(a.Err).
				Int("ordinal", ordinal).
				Str("block", desc.BlockID).
				Int("replica", a.Index).
				Str("node", a.Target.String()).
				Msg("replica write failed")
		}
	}
	e.log.Debug().
		Int("ordinal", ordinal).
		Str("block", desc.BlockID).
		Int("size", len(data)).
		Msgf("block written to %d/%d replicas", w.Succeeded(), len(w.Attempts))
	return w
}

func (e *Engine) writeReplica(ctx context.Context, target plan.ReplicaTarget, blockID string, data []byte) error {
	t, err := e.dialer.Dial(target)
	if err != nil {
		return err
	}
	defer t.Close()
	return t.WriteBlock(ctx, blockID, data)
}

// abort unregisters the file and, when compensating deletes are enabled, removes the replica
// copies already written. Failures are logged and otherwise ignored.
func (e *Engine) abort(ctx context.Context, sess session.Session, res *UploadResult) {
	ctx = context.WithoutCancel(ctx)
	res.Unregistered = e.unregister(ctx, sess, res.Path)
	if !e.compensate {
		if n := len(res.Committed()); n > 0 {
			e.log.Warn().
				Str("path", res.Path.String()).
				Int("blocks", n).
				Msg("committed blocks of aborted upload left on replicas")
		}
		return
	}
	for _, b := range res.Blocks {
		for _, a := range b.Attempts {
			if !a.OK() {
				continue
			}
			if err := e.deleteReplica(ctx, a.Target, b.BlockID); err != nil {
				e.log.Warn().Err(err).
					Int("ordinal", b.Ordinal).
					Str("block", b.BlockID).
					Str("node", a.Target.String()).
					Msg("compensating delete failed")
				continue
			}
			res.Compensated++
		}
	}
}

func (e *Engine) unregister(ctx context.Context, sess session.Session, path dfspath.Path) bool {
	if err := e.authority.Delete(context.WithoutCancel(ctx), sess, path); err != nil {
		e.log.Warn().Err(err).Str("path", path.String()).Msg("aborted upload still registered")
		return false
	}
	return true
}

func (e *Engine) deleteReplica(ctx context.Context, target plan.ReplicaTarget, blockID string) error {
	t, err := e.dialer.Dial(target)
	if err != nil {
		return err
	}
	defer t.Close()
	ok, err := t.DeleteBlock(ctx, blockID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("delete block %s on %s: not acknowledged", blockID, target)
	}
	return nil
}
