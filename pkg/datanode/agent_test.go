package datanode

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"griddfs/pkg/api"

	"github.com/rs/zerolog"
)

type fakeNameNode struct {
	mu         sync.Mutex
	failFirst  int
	registered int
	reports    [][]string
	known      bool
	beats      int
}

func (f *fakeNameNode) RegisterDataNode(ctx context.Context, info api.DataNodeInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFirst > 0 {
		f.failFirst--
		return errors.New("namenode unavailable")
	}
	f.registered++
	f.known = true
	return nil
}

func (f *fakeNameNode) Heartbeat(ctx context.Context, nodeID string, free int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	ok := f.known
	// forget the node after the first heartbeat
	f.known = false
	return ok, nil
}

func (f *fakeNameNode) BlockReport(ctx context.Context, nodeID string, blockIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, blockIDs)
	return nil
}

func (f *fakeNameNode) snapshot() (registered, beats int, reports [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered, f.beats, append([][]string(nil), f.reports...)
}

func TestAgent(t *testing.T) {
	st, err := OpenStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if err := st.Put("x_blk_0", []byte("x")); err != nil {
		t.Fatal(err)
	}
	srv := NewServer(st)
	nn := &fakeNameNode{failFirst: 2}
	a := NewAgent(nn, "dn1", "127.0.0.1:50051", srv,
		WithHeartbeatInterval(10*time.Millisecond),
		WithBackoff(time.Millisecond, 4*time.Millisecond),
		WithAgentLogger(zerolog.New(io.Discard)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		registered, _, _ := nn.snapshot()
		if registered >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("agent did not re-register after a rejected heartbeat")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run = %v, want %v", err, context.Canceled)
	}

	_, beats, reports := nn.snapshot()
	if beats == 0 {
		t.Error("no heartbeats sent")
	}
	if len(reports) < 2 || len(reports[0]) != 1 || reports[0][0] != "x_blk_0" {
		t.Fatalf("block reports = %v", reports)
	}
}

func TestAgentStopsWhileRegistering(t *testing.T) {
	st, err := OpenStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	nn := &fakeNameNode{failFirst: 1 << 30}
	a := NewAgent(nn, "dn1", "127.0.0.1:50051", NewServer(st),
		WithBackoff(time.Millisecond, 2*time.Millisecond),
		WithAgentLogger(zerolog.New(io.Discard)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := a.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run = %v, want %v", err, context.DeadlineExceeded)
	}
}
