// Package transfer moves file content between a client and the replicated block store:
// uploads fan each block out to all of its replicas, downloads fail over across replicas.
package transfer

import (
	"context"

	"griddfs/pkg/dfspath"
	"griddfs/pkg/plan"
	"griddfs/pkg/session"
	"griddfs/pkg/transport"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Authority is the part of the metadata authority the engine needs: block plans for new and
// existing files, and removal of a file whose upload was aborted.
type Authority interface {
	CreateFile(ctx context.Context, sess session.Session, path dfspath.Path, size int64) (*plan.BlockPlan, error)
	GetFileInfo(ctx context.Context, sess session.Session, path dfspath.Path) (*plan.BlockPlan, error)
	Delete(ctx context.Context, sess session.Session, path dfspath.Path) error
}

// Engine runs uploads and downloads. It holds no per-operation state, so one Engine may serve
// concurrent, unrelated transfers.
type Engine struct {
	authority        Authority
	dialer           transport.Dialer
	blockSize        int64
	writeParallelism int
	compensate       bool
	log              zerolog.Logger
	metrics          *Metrics
}

type Option func(*Engine)

// WithBlockSize must agree with the authority's block size.
func WithBlockSize(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.blockSize = n
		}
	}
}

// WithWriteParallelism caps concurrent replica writes per block. Zero means one per replica.
func WithWriteParallelism(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.writeParallelism = n
		}
	}
}

// WithCompensatingDeletes makes an aborted upload delete the replica copies it already wrote.
// Without it committed blocks of an aborted upload stay on their replicas.
func WithCompensatingDeletes() Option {
	return func(e *Engine) { e.compensate = true }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(authority Authority, dialer transport.Dialer, opts ...Option) *Engine {
	e := &Engine{
		authority: authority,
		dialer:    dialer,
		blockSize: plan.DefaultBlockSize,
		log:       log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
