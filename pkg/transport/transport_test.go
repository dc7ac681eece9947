package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"griddfs/pkg/api"
	"griddfs/pkg/plan"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type memNode struct {
	api.UnimplementedDataNodeServiceServer

	mu       sync.Mutex
	blocks   map[string][]byte
	messages int
	reject   bool
	delay    time.Duration
}

func newMemNode() *memNode {
	return &memNode{blocks: make(map[string][]byte)}
}

func (n *memNode) sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.messages
}

func (n *memNode) WriteBlock(stream api.WriteBlockServerStream) error {
	var id string
	var buf []byte
	for {
		req, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		n.mu.Lock()
		n.messages++
		n.mu.Unlock()
		id = req.BlockID
		buf = append(buf, req.Data...)
	}
	if n.reject {
		return stream.SendAndClose(&api.WriteBlockResponse{Success: false, Message: "disk full"})
	}
	n.mu.Lock()
	n.blocks[id] = buf
	n.mu.Unlock()
	return stream.SendAndClose(&api.WriteBlockResponse{Success: true})
}

func (n *memNode) ReadBlock(req *api.ReadBlockRequest, stream api.ReadBlockServerStream) error {
	if n.delay > 0 {
		select {
		case <-time.After(n.delay):
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
	n.mu.Lock()
	data, ok := n.blocks[req.BlockID]
	n.mu.Unlock()
	if !ok {
		return status.Errorf(codes.NotFound, "block %s", req.BlockID)
	}
	for off := 0; off < len(data); off += 1000 {
		end := min(off+1000, len(data))
		if err := stream.Send(&api.ReadBlockResponse{Data: data[off:end]}); err != nil {
			return err
		}
	}
	return nil
}

func (n *memNode) DeleteBlock(_ context.Context, req *api.DeleteBlockRequest) (*api.DeleteBlockResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.blocks[req.BlockID]
	delete(n.blocks, req.BlockID)
	return &api.DeleteBlockResponse{Success: ok}, nil
}

func serve(t *testing.T, srv api.DataNodeServiceServer) Option {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(api.ServerOptions()...)
	api.RegisterDataNodeServiceServer(s, srv)
	grpc_health_v1.RegisterHealthServer(s, health.NewServer())
	go s.Serve(lis)
	t.Cleanup(s.Stop)
	return WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
}

var target = plan.ReplicaTarget{NodeID: "dn1", Addr: "dn1:50051"}

func TestWriteReadDelete(t *testing.T) {
	node := newMemNode()
	r, err := Dial(target, serve(t, node))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ctx := context.Background()
	content := bytes.Repeat([]byte("griddfs"), 150000/7)
	if err := r.WriteBlock(ctx, "blk_0", content); err != nil {
		t.Fatal(err)
	}
	if want := (len(content) + DefaultChunkSize - 1) / DefaultChunkSize; node.sent() != want {
		t.Errorf("sent %d messages, want %d", node.sent(), want)
	}
	got, err := r.ReadBlock(ctx, "blk_0")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("read %d bytes, want %d", len(got), len(content))
	}
	ok, err := r.DeleteBlock(ctx, "blk_0")
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	if _, err := r.ReadBlock(ctx, "blk_0"); !errors.Is(err, ErrBlockNotFound) {
		t.Fatalf("read after delete: %v", err)
	}
}

func TestWriteEmptyBlock(t *testing.T) {
	node := newMemNode()
	r, err := Dial(target, serve(t, node), WithChunkSize(16))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err := r.WriteBlock(context.Background(), "empty", nil); err != nil {
		t.Fatal(err)
	}
	if node.sent() != 1 {
		t.Errorf("sent %d messages, want 1", node.sent())
	}
	got, err := r.ReadBlock(context.Background(), "empty")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("read %d bytes from empty block", len(got))
	}
}

func TestRejectedWrite(t *testing.T) {
	node := newMemNode()
	node.reject = true
	r, err := Dial(target, serve(t, node))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	err = r.WriteBlock(context.Background(), "blk_0", []byte("x"))
	var terr *Error
	if !errors.As(err, &terr) || !errors.Is(err, ErrRejected) {
		t.Fatalf("got %v, want rejected transport error", err)
	}
	if terr.Op != "write" || terr.BlockID != "blk_0" || terr.Target != target {
		t.Errorf("unexpected error fields %+v", terr)
	}
}

func TestUnreachableReplica(t *testing.T) {
	refused := WithDialOptions(grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}))
	r, err := Dial(target, refused, WithCallTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var terr *Error
	if err := r.WriteBlock(context.Background(), "blk_0", []byte("x")); !errors.As(err, &terr) {
		t.Errorf("write: got %v, want *Error", err)
	}
	if _, err := r.ReadBlock(context.Background(), "blk_0"); !errors.As(err, &terr) {
		t.Errorf("read: got %v, want *Error", err)
	}
	if _, err := r.DeleteBlock(context.Background(), "blk_0"); !errors.As(err, &terr) {
		t.Errorf("delete: got %v, want *Error", err)
	}
}

func TestCallTimeout(t *testing.T) {
	node := newMemNode()
	node.blocks["slow"] = []byte("late")
	node.delay = 2 * time.Second
	r, err := Dial(target, serve(t, node), WithCallTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_, err = r.ReadBlock(context.Background(), "slow")
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("got %v, want *Error", err)
	}
	if status.Code(terr.Err) != codes.DeadlineExceeded {
		t.Errorf("got code %v, want DeadlineExceeded", status.Code(terr.Err))
	}
}

func TestPing(t *testing.T) {
	r, err := Dial(target, serve(t, newMemNode()))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if err := r.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}
