// Package datanode is the reference block storage node: local block storage, the
// DataNodeService gRPC server and the agent that keeps the node registered with the NameNode.
package datanode

import (
	"context"
	"errors"
	"io"
	"net"

	"griddfs/pkg/api"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const DefaultReadChunkSize = 128 << 10

type Server struct {
	api.UnimplementedDataNodeServiceServer
	st       *Storage
	chunk    int
	capacity int64
	log      zerolog.Logger
	health   *health.Server
}

type ServerOption func(*Server)

func WithReadChunkSize(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.chunk = n
		}
	}
}

// WithCapacity rejects writes that would grow the stored bytes past n. Zero is unlimited.
func WithCapacity(n int64) ServerOption {
	return func(s *Server) { s.capacity = n }
}

func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

func NewServer(st *Storage, opts ...ServerOption) *Server {
	s := &Server{st: st, chunk: DefaultReadChunkSize, log: log.Logger, health: health.NewServer()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Free is the remaining capacity, or -1 when unlimited.
func (s *Server) Free() int64 {
	if s.capacity <= 0 {
		return -1
	}
	return max(s.capacity-s.st.Used(), 0)
}

// WriteBlock buffers the whole stream and stores the block once the client closes it.
func (s *Server) WriteBlock(stream api.WriteBlockServerStream) error {
	var id string
	var buf []byte
	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if id == "" {
			id = req.BlockID
		}
		buf = append(buf, req.Data...)
	}
	if id == "" {
		return status.Error(codes.InvalidArgument, "write stream carried no block id")
	}
	if free := s.Free(); free >= 0 && int64(len(buf)) > free {
		s.log.Warn().Str("block", id).Int("size", len(buf)).Int64("free", free).Msg("write rejected")
		return stream.SendAndClose(&api.WriteBlockResponse{Message: "no space left"})
	}
	if err := s.st.Put(id, buf); err != nil {
		if errors.Is(err, ErrInvalidID) {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		s.log.Error().Err(err).Str("block", id).Msg("store block")
		return stream.SendAndClose(&api.WriteBlockResponse{Message: err.Error()})
	}
	s.log.Debug().Str("block", id).Int("size", len(buf)).Msg("block stored")
	return stream.SendAndClose(&api.WriteBlockResponse{Success: true})
}

func (s *Server) ReadBlock(req *api.ReadBlockRequest, stream api.ReadBlockServerStream) error {
	data, err := s.st.Get(req.BlockID)
	switch {
	case errors.Is(err, ErrNotFound):
		return status.Errorf(codes.NotFound, "block %s", req.BlockID)
	case errors.Is(err, ErrInvalidID):
		return status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		return status.Errorf(codes.Internal, "read block %s: %v", req.BlockID, err)
	}
	for off := 0; off < len(data); off += s.chunk {
		end := min(off+s.chunk, len(data))
		if err := stream.Send(&api.ReadBlockResponse{Data: data[off:end]}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) DeleteBlock(ctx context.Context, req *api.DeleteBlockRequest) (*api.DeleteBlockResponse, error) {
	ok, err := s.st.Delete(req.BlockID)
	if errors.Is(err, ErrInvalidID) {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "delete block %s: %v", req.BlockID, err)
	}
	if ok {
		s.log.Debug().Str("block", req.BlockID).Msg("block deleted")
	}
	return &api.DeleteBlockResponse{Success: ok}, nil
}

// Register installs the block service and the health service on g.
func (s *Server) Register(g *grpc.Server) {
	api.RegisterDataNodeServiceServer(g, s)
	grpc_health_v1.RegisterHealthServer(g, s.health)
}

// SetServing flips the health status reported to clients.
func (s *Server) SetServing(ok bool) {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if !ok {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
}

func Serve(addr string, srv *Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(lis, srv)
}

func ServeListener(lis net.Listener, srv *Server) error {
	g := grpc.NewServer(api.ServerOptions()...)
	srv.Register(g)
	srv.log.Info().Str("addr", lis.Addr().String()).Msg("DataNode listening")
	return g.Serve(lis)
}
