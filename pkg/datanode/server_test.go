package datanode

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"griddfs/pkg/api"
	"griddfs/pkg/plan"
	"griddfs/pkg/transport"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func startNode(t *testing.T, opts ...ServerOption) (*Server, *transport.Replica) {
	t.Helper()
	st, err := OpenStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	srv := NewServer(st, append([]ServerOption{WithLogger(zerolog.New(io.Discard))}, opts...)...)

	lis := bufconn.Listen(1 << 20)
	g := grpc.NewServer(api.ServerOptions()...)
	srv.Register(g)
	go g.Serve(lis)
	t.Cleanup(g.Stop)

	r, err := transport.Dial(plan.ReplicaTarget{NodeID: "dn1", Addr: "dn1:50051"},
		transport.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return srv, r
}

func TestServerRoundTrip(t *testing.T) {
	_, r := startNode(t, WithReadChunkSize(1000))
	ctx := context.Background()

	data := bytes.Repeat([]byte{1, 2, 3}, 100_000)
	if err := r.WriteBlock(ctx, "f_blk_0", data); err != nil {
		t.Fatal(err)
	}
	got, err := r.ReadBlock(ctx, "f_blk_0")
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("read = %d bytes, %v", len(got), err)
	}

	if err := r.WriteBlock(ctx, "empty_blk_0", nil); err != nil {
		t.Fatal(err)
	}
	if got, err := r.ReadBlock(ctx, "empty_blk_0"); err != nil || len(got) != 0 {
		t.Fatalf("empty read = %v, %v", got, err)
	}

	ok, err := r.DeleteBlock(ctx, "f_blk_0")
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	if _, err := r.ReadBlock(ctx, "f_blk_0"); !errors.Is(err, transport.ErrBlockNotFound) {
		t.Fatalf("read after delete: %v", err)
	}
	if ok, err := r.DeleteBlock(ctx, "f_blk_0"); err != nil || ok {
		t.Fatalf("second delete = %v, %v", ok, err)
	}
}

func TestServerCapacity(t *testing.T) {
	srv, r := startNode(t, WithCapacity(10))
	ctx := context.Background()

	if err := r.WriteBlock(ctx, "a", []byte("12345678")); err != nil {
		t.Fatal(err)
	}
	if srv.Free() != 2 {
		t.Fatalf("free = %d, want 2", srv.Free())
	}
	err := r.WriteBlock(ctx, "b", []byte("123"))
	if !errors.Is(err, transport.ErrRejected) {
		t.Fatalf("over capacity: err = %v, want %v", err, transport.ErrRejected)
	}
}

func TestServerHealth(t *testing.T) {
	srv, r := startNode(t)
	if err := r.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	srv.SetServing(false)
	if err := r.Ping(context.Background()); !errors.Is(err, transport.ErrNotServing) {
		t.Fatalf("ping = %v, want %v", err, transport.ErrNotServing)
	}
}
