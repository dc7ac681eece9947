package transfer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"griddfs/pkg/dfspath"
	"griddfs/pkg/plan"
	"griddfs/pkg/session"
	"griddfs/pkg/transport"
)

// Download reassembles the file at path. Each block is read from its replicas in the
// authority's preference order and the first successful read wins. A block no replica can
// serve aborts the download with a *BlockUnavailableError and no content.
func (e *Engine) Download(ctx context.Context, sess session.Session, path dfspath.Path) (*DownloadResult, error) {
	p, err := e.authority.GetFileInfo(ctx, sess, path)
	if err != nil {
		return nil, err
	}
	bs := p.BlockSize
	if bs == 0 {
		bs = e.blockSize
	}
	if err := p.Validate(p.Size, bs); err != nil {
		return nil, fmt.Errorf("download %s: %w", path, err)
	}

	var buf bytes.Buffer
	if p.Size > 0 {
		buf.Grow(int(p.Size))
	}
	res := &DownloadResult{Path: path, OwnerID: p.OwnerID}
	for i, desc := range p.Blocks {
		r, data, err := e.readBlock(ctx, i, desc)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
		res.Blocks = append(res.Blocks, r)
	}
	if p.Size > 0 && int64(buf.Len()) != p.Size {
		return nil, fmt.Errorf("download %s: %w: read %d bytes, file has %d", path, plan.ErrPlanMismatch, buf.Len(), p.Size)
	}
	res.Content = buf.Bytes()

	e.metrics.transferred("download", int64(len(res.Content)))
	e.log.Info().
		Str("path", path.String()).
		Int("bytes", len(res.Content)).
		Int("blocks", len(res.Blocks)).
		Msg("download complete")
	return res, nil
}

func (e *Engine) readBlock(ctx context.Context, ordinal int, desc plan.BlockDescriptor) (BlockRead, []byte, error) {
	defer e.metrics.block("download", time.Now())

	r := BlockRead{Ordinal: ordinal, BlockID: desc.BlockID}
	for j, target := range desc.Replicas {
		data, err := e.readReplica(ctx, target, desc.BlockID)
		if err == nil && desc.Size > 0 && int64(len(data)) != desc.Size {
			err = &transport.Error{
				Op:      "read",
				Target:  target,
				BlockID: desc.BlockID,
				Err:     fmt.Errorf("%w: got %d bytes, want %d", ErrShortBlock, len(data), desc.Size),
			}
		}
		e.metrics.replicaRead(err)
		if err == nil {
			r.Size = len(data)
			r.ServedBy = target
			r.ServedIndex = j
			if j > 0 {
				e.metrics.failover()
			}
			e.log.Debug().
				Int("ordinal", ordinal).
				Str("block", desc.BlockID).
				Int("replica", j).
				Str("node", target.String()).
				Msg("block read")
			return r, data, nil
		}
		r.Failed = append(r.Failed, ReplicaAttempt{Index: j, Target: target, Err: err})
		e.log.Warn().Err(err).
			Int("ordinal", ordinal).
			Str("block", desc.BlockID).
			Int("replica", j).
			Str("node", target.String()).
			Msg("replica read failed")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r, nil, ctxErr
		}
	}
	return r, nil, &BlockUnavailableError{Ordinal: ordinal, BlockID: desc.BlockID, Attempts: r.Failed}
}

func (e *Engine) readReplica(ctx context.Context, target plan.ReplicaTarget, blockID string) ([]byte, error) {
	t, err := e.dialer.Dial(target)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return t.ReadBlock(ctx, blockID)
}
