package meta

import (
	"path"
	"strings"
	"time"
)

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash []byte `json:"password_hash"`
}

// BlockRef is one block of a stored file. Nodes keep placement order.
type BlockRef struct {
	ID    string   `json:"id"`
	Size  int64    `json:"size"`
	Nodes []string `json:"nodes"`
}

// File is a file or directory entry of one owner's namespace. Path is absolute.
type File struct {
	Owner     string     `json:"owner"`
	Path      string     `json:"path"`
	IsDir     bool       `json:"is_dir"`
	Size      int64      `json:"size"`
	BlockSize int64      `json:"block_size"`
	Blocks    []BlockRef `json:"blocks,omitempty"`
	Created   time.Time  `json:"created"`
	// Version is bumped by every update; UpdateFile fails with ErrConflict on a stale value.
	Version int64 `json:"version"`
}

func (f File) Name() string { return path.Base(f.Path) }

// blockLoc is the index entry from a block id back to its file.
type blockLoc struct {
	Owner string `json:"owner"`
	Path  string `json:"path"`
}

const prefix = "/griddfs/"

func userKey(username string) string { return prefix + "users/" + username }

func userIDKey(id string) string { return prefix + "userids/" + id }

func fileKey(owner, p string) string { return prefix + "files/" + owner + p }

// dirPrefix is the key prefix of every entry below dir.
func dirPrefix(owner, dir string) string {
	return prefix + "files/" + owner + strings.TrimSuffix(dir, "/") + "/"
}

func blockKey(id string) string { return prefix + "blocks/" + id }
