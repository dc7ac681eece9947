package datanode

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotFound  = errors.New("block not found")
	ErrInvalidID = errors.New("invalid block id")
)

// Storage keeps one file per block under hashed fan-out directories. Every change is logged
// to the WAL first; the WAL is replayed on open to rebuild the block index.
type Storage struct {
	base string
	wal  *WAL

	mu    sync.RWMutex
	index map[string]int64 // block id -> size
}

func OpenStorage(base string) (*Storage, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	wal, err := OpenWAL(filepath.Join(base, "wal"))
	if err != nil {
		return nil, err
	}
	s := &Storage{base: base, wal: wal, index: make(map[string]int64)}
	if err := s.replay(); err != nil {
		wal.Close()
		return nil, fmt.Errorf("replay wal: %w", err)
	}
	return s, nil
}

func (s *Storage) replay() error {
	return s.wal.Replay(func(r record) error {
		switch r.op {
		case opPut:
			// a PUT whose rename never happened leaves no block
			if _, err := os.Stat(s.blockPath(r.block)); err == nil {
				s.index[r.block] = r.size
			}
		case opDel:
			delete(s.index, r.block)
		}
		return nil
	})
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, " \t\r\n/\\") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (s *Storage) blockPath(id string) string {
	sum := sha256.Sum256([]byte(id))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(s.base, "blocks", h[:2], h[2:4], h)
}

// Put stores data as block id, replacing any previous content.
func (s *Storage) Put(id string, data []byte) error {
	if err := validID(id); err != nil {
		return err
	}
	p := s.blockPath(id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	if err := s.wal.Append(record{op: opPut, block: id, size: int64(len(data)), sum: hex.EncodeToString(sum[:])}); err != nil {
		return err
	}
	tmp, err := writeTemp(filepath.Dir(p), filepath.Base(p), data)
	if err != nil {
		return err
	}
	// rename and index update together, so the index matches the surviving file
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return err
	}
	s.index[id] = int64(len(data))
	return nil
}

// writeTemp writes data to a fresh, synced temp file in dir and returns its name. Concurrent
// writers of the same block each get their own file.
func writeTemp(dir, base string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, base+".*.tmp")
	if err != nil {
		return "", err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (s *Storage) Get(id string) ([]byte, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.blockPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return b, err
}

// Delete removes block id and reports whether it existed.
func (s *Storage) Delete(id string) (bool, error) {
	if err := validID(id); err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := s.wal.Append(record{op: opDel, block: id}); err != nil {
		return false, err
	}
	if err := os.Remove(s.blockPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()
	return true, nil
}

// Blocks lists the stored block ids in order.
func (s *Storage) Blocks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.index))
	for id := range s.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Used is the total size of the stored blocks.
func (s *Storage) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, size := range s.index {
		n += size
	}
	return n
}

func (s *Storage) Close() error { return s.wal.Close() }
