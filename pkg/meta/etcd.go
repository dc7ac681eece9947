package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

type EtcdStore struct{ cli *clientv3.Client }

func NewEtcdStore(endpoints []string) (*EtcdStore, error) {
	cli, err := clientv3.New(clientv3.Config{Endpoints: endpoints, DialTimeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &EtcdStore{cli: cli}, nil
}

func (s *EtcdStore) Close() error { return s.cli.Close() }

// putIfAbsent writes k only if it does not exist yet (If-None-Match:*).
func (s *EtcdStore) putIfAbsent(ctx context.Context, k string, v any, extra ...clientv3.Op) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ops := append([]clientv3.Op{clientv3.OpPut(k, string(b))}, extra...)
	resp, err := s.cli.Txn(ctx).If(clientv3.Compare(clientv3.Version(k), "=", 0)).Then(ops...).Commit()
	if err != nil {
		return err
	}
	if !resp.Succeeded {
		return fmt.Errorf("%s: %w", k, ErrExists)
	}
	return nil
}

func (s *EtcdStore) get(ctx context.Context, k string, v any) (modRev int64, err error) {
	resp, err := s.cli.Get(ctx, k)
	if err != nil {
		return 0, err
	}
	if len(resp.Kvs) == 0 {
		return 0, fmt.Errorf("%s: %w", k, ErrNotFound)
	}
	if err := json.Unmarshal(resp.Kvs[0].Value, v); err != nil {
		return 0, err
	}
	return resp.Kvs[0].ModRevision, nil
}

func (s *EtcdStore) PutUser(ctx context.Context, u User) error {
	return s.putIfAbsent(ctx, userKey(u.Username), u, clientv3.OpPut(userIDKey(u.ID), u.Username))
}

func (s *EtcdStore) GetUser(ctx context.Context, username string) (User, error) {
	var u User
	_, err := s.get(ctx, userKey(username), &u)
	return u, err
}

func (s *EtcdStore) UserByID(ctx context.Context, id string) (User, error) {
	resp, err := s.cli.Get(ctx, userIDKey(id))
	if err != nil {
		return User{}, err
	}
	if len(resp.Kvs) == 0 {
		return User{}, fmt.Errorf("%s: %w", userIDKey(id), ErrNotFound)
	}
	return s.GetUser(ctx, string(resp.Kvs[0].Value))
}

func (s *EtcdStore) CreateFile(ctx context.Context, f File) error {
	var ops []clientv3.Op
	for _, b := range f.Blocks {
		loc, err := json.Marshal(blockLoc{Owner: f.Owner, Path: f.Path})
		if err != nil {
			return err
		}
		ops = append(ops, clientv3.OpPut(blockKey(b.ID), string(loc)))
	}
	return s.putIfAbsent(ctx, fileKey(f.Owner, f.Path), f, ops...)
}

func (s *EtcdStore) GetFile(ctx context.Context, owner, path string) (File, error) {
	var f File
	_, err := s.get(ctx, fileKey(owner, path), &f)
	return f, err
}

// UpdateFile is optimistic: the write only lands if the key was not modified since it was read.
func (s *EtcdStore) UpdateFile(ctx context.Context, f File) (int64, error) {
	k := fileKey(f.Owner, f.Path)
	var cur File
	rev, err := s.get(ctx, k, &cur)
	if err != nil {
		return 0, err
	}
	if cur.Version != f.Version {
		return 0, fmt.Errorf("%s: %w", k, ErrConflict)
	}
	f.Version++
	b, err := json.Marshal(f)
	if err != nil {
		return 0, err
	}
	resp, err := s.cli.Txn(ctx).If(clientv3.Compare(clientv3.ModRevision(k), "=", rev)).Then(clientv3.OpPut(k, string(b))).Commit()
	if err != nil {
		return 0, err
	}
	if !resp.Succeeded {
		return 0, fmt.Errorf("%s: %w", k, ErrConflict)
	}
	return f.Version, nil
}

func (s *EtcdStore) DeleteFile(ctx context.Context, owner, path string) (File, error) {
	k := fileKey(owner, path)
	var f File
	rev, err := s.get(ctx, k, &f)
	if err != nil {
		return File{}, err
	}
	ops := []clientv3.Op{clientv3.OpDelete(k)}
	for _, b := range f.Blocks {
		ops = append(ops, clientv3.OpDelete(blockKey(b.ID)))
	}
	resp, err := s.cli.Txn(ctx).If(clientv3.Compare(clientv3.ModRevision(k), "=", rev)).Then(ops...).Commit()
	if err != nil {
		return File{}, err
	}
	if !resp.Succeeded {
		return File{}, fmt.Errorf("%s: %w", k, ErrConflict)
	}
	return f, nil
}

func (s *EtcdStore) List(ctx context.Context, owner, dir string) ([]File, error) {
	resp, err := s.cli.Get(ctx, dirPrefix(owner, dir), clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, err
	}
	out := make([]File, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var f File
		if err := json.Unmarshal(kv.Value, &f); err != nil {
			return nil, fmt.Errorf("%s: %w", kv.Key, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *EtcdStore) FileByBlock(ctx context.Context, blockID string) (File, error) {
	var loc blockLoc
	if _, err := s.get(ctx, blockKey(blockID), &loc); err != nil {
		return File{}, err
	}
	return s.GetFile(ctx, loc.Owner, loc.Path)
}
