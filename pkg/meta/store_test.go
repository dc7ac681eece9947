package meta

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func openBadger(t *testing.T) Store {
	t.Helper()
	s, err := OpenBadger("", zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// stores returns every backend available to the test run. etcd needs GRIDDFS_TEST_ETCD.
func stores(t *testing.T) map[string]func(*testing.T) Store {
	m := map[string]func(*testing.T) Store{"badger": openBadger}
	if ep := os.Getenv("GRIDDFS_TEST_ETCD"); ep != "" {
		m["etcd"] = func(t *testing.T) Store {
			s, err := NewEtcdStore(strings.Split(ep, ","))
			if err != nil {
				t.Fatalf("etcd: %v", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := s.cli.Delete(ctx, prefix, clientv3.WithPrefix()); err != nil {
				t.Fatalf("etcd reset: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		}
	}
	return m
}

func TestStore(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("users", func(t *testing.T) { testUsers(t, open(t)) })
			t.Run("files", func(t *testing.T) { testFiles(t, open(t)) })
			t.Run("list", func(t *testing.T) { testList(t, open(t)) })
		})
	}
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()
	u := User{ID: "id-1", Username: "alice", PasswordHash: []byte("h")}
	if err := s.PutUser(ctx, u); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutUser(ctx, User{ID: "id-2", Username: "alice"}); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate user: err = %v, want %v", err, ErrExists)
	}
	got, err := s.GetUser(ctx, "alice")
	if err != nil || got.ID != "id-1" {
		t.Fatalf("get = %+v, %v", got, err)
	}
	if byID, err := s.UserByID(ctx, "id-1"); err != nil || byID.Username != "alice" {
		t.Fatalf("by id = %+v, %v", byID, err)
	}
	if _, err := s.UserByID(ctx, "id-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected duplicate left an id entry: %v", err)
	}
	if _, err := s.GetUser(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user: err = %v, want %v", err, ErrNotFound)
	}
}

func testFiles(t *testing.T, s Store) {
	ctx := context.Background()
	f := File{
		Owner:  "u1",
		Path:   "/docs/a.txt",
		Size:   10,
		Blocks: []BlockRef{{ID: "b0", Size: 10, Nodes: []string{"dn1"}}},
	}
	if err := s.CreateFile(ctx, f); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateFile(ctx, f); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate: err = %v, want %v", err, ErrExists)
	}
	// same path, other owner
	if err := s.CreateFile(ctx, File{Owner: "u2", Path: "/docs/a.txt"}); err != nil {
		t.Fatalf("other owner: %v", err)
	}

	byBlock, err := s.FileByBlock(ctx, "b0")
	if err != nil || byBlock.Path != "/docs/a.txt" || byBlock.Owner != "u1" {
		t.Fatalf("by block = %+v, %v", byBlock, err)
	}

	byBlock.Blocks[0].Nodes = append(byBlock.Blocks[0].Nodes, "dn2")
	v, err := s.UpdateFile(ctx, byBlock)
	if err != nil || v != 1 {
		t.Fatalf("update = %d, %v", v, err)
	}
	if _, err := s.UpdateFile(ctx, byBlock); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale update: err = %v, want %v", err, ErrConflict)
	}
	got, err := s.GetFile(ctx, "u1", "/docs/a.txt")
	if err != nil || len(got.Blocks[0].Nodes) != 2 || got.Version != 1 {
		t.Fatalf("get = %+v, %v", got, err)
	}

	del, err := s.DeleteFile(ctx, "u1", "/docs/a.txt")
	if err != nil || del.Blocks[0].ID != "b0" {
		t.Fatalf("delete = %+v, %v", del, err)
	}
	if _, err := s.GetFile(ctx, "u1", "/docs/a.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: err = %v, want %v", err, ErrNotFound)
	}
	if _, err := s.FileByBlock(ctx, "b0"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("block index after delete: err = %v, want %v", err, ErrNotFound)
	}
	if _, err := s.DeleteFile(ctx, "u1", "/docs/a.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: err = %v, want %v", err, ErrNotFound)
	}
}

func testList(t *testing.T, s Store) {
	ctx := context.Background()
	for _, f := range []File{
		{Owner: "u1", Path: "/docs", IsDir: true},
		{Owner: "u1", Path: "/docs/a"},
		{Owner: "u1", Path: "/docs/sub", IsDir: true},
		{Owner: "u1", Path: "/docs/sub/b"},
		{Owner: "u1", Path: "/top"},
		{Owner: "u10", Path: "/other"},
	} {
		if err := s.CreateFile(ctx, f); err != nil {
			t.Fatalf("create %s: %v", f.Path, err)
		}
	}

	all, err := s.List(ctx, "u1", "/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("listed %d entries under /, want 5: %+v", len(all), all)
	}
	var names []string
	for _, f := range Children("/", all) {
		names = append(names, f.Name())
	}
	if strings.Join(names, ",") != "docs,top" {
		t.Fatalf("root children = %v", names)
	}

	docs, err := s.List(ctx, "u1", "/docs")
	if err != nil {
		t.Fatalf("list /docs: %v", err)
	}
	names = names[:0]
	for _, f := range Children("/docs", docs) {
		names = append(names, f.Name())
	}
	if strings.Join(names, ",") != "a,sub" {
		t.Fatalf("/docs children = %v", names)
	}
}
