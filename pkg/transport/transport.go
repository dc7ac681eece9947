// Package transport is the point-to-point client for a single DataNode.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"griddfs/pkg/api"
	"griddfs/pkg/plan"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const (
	DefaultChunkSize   = 64 << 10
	DefaultCallTimeout = 30 * time.Second
)

var (
	ErrRejected      = errors.New("replica rejected block")
	ErrBlockNotFound = errors.New("block not found on replica")
	ErrNotServing    = errors.New("replica not serving")
)

// Error reports a failed call against one replica. Callers treat it as "this replica is
// unavailable", never as fatal.
type Error struct {
	Op      string
	Target  plan.ReplicaTarget
	BlockID string
	Err     error
}

func (e *Error) Error() string {
	if e.BlockID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s block %s on %s: %v", e.Op, e.BlockID, e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// BlockTransport is the block I/O surface of one replica.
type BlockTransport interface {
	WriteBlock(ctx context.Context, blockID string, content []byte) error
	ReadBlock(ctx context.Context, blockID string) ([]byte, error)
	DeleteBlock(ctx context.Context, blockID string) (bool, error)
	Close() error
}

// Dialer opens a BlockTransport to a replica.
type Dialer interface {
	Dial(target plan.ReplicaTarget) (BlockTransport, error)
}

type Option func(*config)

type config struct {
	chunkSize   int
	callTimeout time.Duration
	dialOpts    []grpc.DialOption
}

func WithChunkSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithCallTimeout bounds every call. A timed out call fails like a refused connection.
func WithCallTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *config) {
		c.dialOpts = append(c.dialOpts, opts...)
	}
}

// GRPCDialer dials replicas over gRPC with a fixed set of options.
type GRPCDialer struct {
	opts []Option
}

func NewDialer(opts ...Option) *GRPCDialer {
	return &GRPCDialer{opts: opts}
}

func (d *GRPCDialer) Dial(target plan.ReplicaTarget) (BlockTransport, error) {
	return Dial(target, d.opts...)
}

// Replica is a gRPC connection to one DataNode.
type Replica struct {
	target plan.ReplicaTarget
	cfg    config
	conn   *grpc.ClientConn
	client api.DataNodeServiceClient
	health grpc_health_v1.HealthClient
}

// Dial prepares a connection to target. The connection is established lazily, so an
// unreachable node surfaces as an *Error from the first call.
func Dial(target plan.ReplicaTarget, opts ...Option) (*Replica, error) {
	cfg := config{chunkSize: DefaultChunkSize, callTimeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	conn, err := grpc.NewClient("passthrough:///"+target.Addr, api.DialOptions(cfg.dialOpts...)...)
	if err != nil {
		return nil, &Error{Op: "dial", Target: target, Err: err}
	}
	return &Replica{
		target: target,
		cfg:    cfg,
		conn:   conn,
		client: api.NewDataNodeServiceClient(conn),
		health: grpc_health_v1.NewHealthClient(conn),
	}, nil
}

func (r *Replica) fail(op, blockID string, err error) error {
	if status.Code(err) == codes.NotFound {
		err = fmt.Errorf("%w: %s", ErrBlockNotFound, status.Convert(err).Message())
	}
	return &Error{Op: op, Target: r.target, BlockID: blockID, Err: err}
}

// WriteBlock streams content in chunkSize pieces and waits for the node's acknowledgement.
// An empty block is sent as a single message without data.
func (r *Replica) WriteBlock(ctx context.Context, blockID string, content []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.callTimeout)
	defer cancel()

	stream, err := r.client.WriteBlock(ctx)
	if err != nil {
		return r.fail("write", blockID, err)
	}
	for off := 0; off == 0 || off < len(content); off += r.cfg.chunkSize {
		end := min(off+r.cfg.chunkSize, len(content))
		if err := stream.Send(&api.WriteBlockRequest{BlockID: blockID, Data: content[off:end]}); err != nil {
			if errors.Is(err, io.EOF) {
				// the server ended the stream; its status is only visible on receive
				if _, err = stream.CloseAndRecv(); err == nil {
					err = io.ErrUnexpectedEOF
				}
			}
			return r.fail("write", blockID, err)
		}
	}
	resp, err := stream.CloseAndRecv()
	if err != nil {
		return r.fail("write", blockID, err)
	}
	if !resp.Success {
		if resp.Message != "" {
			return r.fail("write", blockID, fmt.Errorf("%w: %s", ErrRejected, resp.Message))
		}
		return r.fail("write", blockID, ErrRejected)
	}
	return nil
}

// ReadBlock returns the concatenation of every streamed chunk, in delivery order.
func (r *Replica) ReadBlock(ctx context.Context, blockID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.callTimeout)
	defer cancel()

	stream, err := r.client.ReadBlock(ctx, &api.ReadBlockRequest{BlockID: blockID})
	if err != nil {
		return nil, r.fail("read", blockID, err)
	}
	var data []byte
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, r.fail("read", blockID, err)
		}
		data = append(data, resp.Data...)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (r *Replica) DeleteBlock(ctx context.Context, blockID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.callTimeout)
	defer cancel()

	resp, err := r.client.DeleteBlock(ctx, &api.DeleteBlockRequest{BlockID: blockID})
	if err != nil {
		return false, r.fail("delete", blockID, err)
	}
	return resp.Success, nil
}

// Ping asks the node's health service whether it is serving.
func (r *Replica) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.callTimeout)
	defer cancel()

	resp, err := r.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return r.fail("ping", "", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return r.fail("ping", "", fmt.Errorf("%w: %s", ErrNotServing, resp.GetStatus()))
	}
	return nil
}

func (r *Replica) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
