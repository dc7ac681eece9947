package datanode

import (
	"context"
	"time"

	"griddfs/pkg/api"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultMaxBackoff        = 30 * time.Second
)

// Registrar is the NameNode surface a DataNode reports to.
type Registrar interface {
	RegisterDataNode(ctx context.Context, info api.DataNodeInfo) error
	Heartbeat(ctx context.Context, nodeID string, free int64) (bool, error)
	BlockReport(ctx context.Context, nodeID string, blockIDs []string) error
}

// Agent keeps one DataNode registered: it registers with backoff, heartbeats and sends a
// block report after every (re-)registration.
type Agent struct {
	nn         Registrar
	info       api.DataNodeInfo
	srv        *Server
	interval   time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration
	log        zerolog.Logger
}

type AgentOption func(*Agent)

func WithHeartbeatInterval(d time.Duration) AgentOption {
	return func(a *Agent) {
		if d > 0 {
			a.interval = d
		}
	}
}

func WithBackoff(initial, limit time.Duration) AgentOption {
	return func(a *Agent) {
		if initial > 0 && limit >= initial {
			a.minBackoff, a.maxBackoff = initial, limit
		}
	}
}

func WithAgentLogger(l zerolog.Logger) AgentOption {
	return func(a *Agent) { a.log = l }
}

func NewAgent(nn Registrar, id, addr string, srv *Server, opts ...AgentOption) *Agent {
	a := &Agent{
		nn:         nn,
		info:       api.DataNodeInfo{ID: id, Address: addr, Capacity: srv.capacity},
		srv:        srv,
		interval:   DefaultHeartbeatInterval,
		minBackoff: time.Second,
		maxBackoff: DefaultMaxBackoff,
		log:        log.Logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) free() int64 { return max(a.srv.Free(), 0) }

// Run blocks until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.register(ctx); err != nil {
		return err
	}
	t := time.NewTicker(a.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		ok, err := a.nn.Heartbeat(ctx, a.info.ID, a.free())
		if err != nil {
			a.log.Warn().Err(err).Str("node", a.info.ID).Msg("heartbeat failed")
			continue
		}
		if !ok {
			a.log.Warn().Str("node", a.info.ID).Msg("heartbeat rejected, registering again")
			if err := a.register(ctx); err != nil {
				return err
			}
		}
	}
}

// register retries with exponential backoff until it succeeds or ctx is done, then sends a
// block report.
func (a *Agent) register(ctx context.Context) error {
	backoff := a.minBackoff
	for {
		info := a.info
		info.FreeSpace = a.free()
		err := a.nn.RegisterDataNode(ctx, info)
		if err == nil {
			break
		}
		a.log.Warn().Err(err).Str("node", a.info.ID).Dur("retry_in", backoff).Msg("register failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, a.maxBackoff)
	}
	a.log.Info().Str("node", a.info.ID).Str("addr", a.info.Address).Msg("registered with namenode")

	blocks := a.srv.st.Blocks()
	if err := a.nn.BlockReport(ctx, a.info.ID, blocks); err != nil {
		a.log.Warn().Err(err).Str("node", a.info.ID).Int("blocks", len(blocks)).Msg("block report failed")
	}
	return nil
}
