// Package meta persists users, the per-user namespace and the block index of the NameNode.
package meta

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
	ErrConflict = errors.New("concurrent update")
)

type Store interface {
	// PutUser fails with ErrExists when the username is taken.
	PutUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)

	// CreateFile fails with ErrExists when the path is taken. It indexes every block.
	CreateFile(ctx context.Context, f File) error
	GetFile(ctx context.Context, owner, path string) (File, error)
	// UpdateFile replaces f if the stored version equals f.Version and returns the new version.
	UpdateFile(ctx context.Context, f File) (int64, error)
	DeleteFile(ctx context.Context, owner, path string) (File, error)
	// List returns every entry below dir, at any depth, ordered by path.
	List(ctx context.Context, owner, dir string) ([]File, error)
	// FileByBlock resolves a block id to the file holding it.
	FileByBlock(ctx context.Context, blockID string) (File, error)

	Close() error
}

// Children filters entries returned by List to the direct children of dir.
func Children(dir string, entries []File) []File {
	base := strings.TrimSuffix(dir, "/") + "/"
	var out []File
	for _, f := range entries {
		rest, ok := strings.CutPrefix(f.Path, base)
		if !ok || rest == "" || strings.Contains(rest, "/") {
			continue
		}
		out = append(out, f)
	}
	return out
}
