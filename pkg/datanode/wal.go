package datanode

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const (
	opPut = "PUT"
	opDel = "DEL"
)

// record is one WAL line: "PUT <block> <size> <sha256>" or "DEL <block>".
type record struct {
	op    string
	block string
	size  int64
	sum   string
}

func (r record) String() string {
	if r.op == opDel {
		return opDel + " " + r.block
	}
	return fmt.Sprintf("%s %s %d %s", r.op, r.block, r.size, r.sum)
}

func parseRecord(line string) (record, error) {
	f := strings.Fields(line)
	switch {
	case len(f) == 2 && f[0] == opDel:
		return record{op: opDel, block: f[1]}, nil
	case len(f) == 4 && f[0] == opPut:
		n, err := strconv.ParseInt(f[2], 10, 64)
		if err != nil {
			return record{}, fmt.Errorf("wal record %q: %w", line, err)
		}
		return record{op: opPut, block: f[1], size: n, sum: f[3]}, nil
	default:
		return record{}, fmt.Errorf("wal record %q: malformed", line)
	}
}

type WAL struct {
	mu sync.Mutex
	f  *os.File
}

func OpenWAL(dir string) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "wal.log"), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &WAL{f: f}, nil
}

// Append writes one record and syncs it.
func (w *WAL) Append(r record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.WriteString(r.String() + "\n"); err != nil {
		return err
	}
	return w.f.Sync()
}

// Replay calls fn for every record in write order. A torn last line is ignored.
func (w *WAL) Replay(fn func(record) error) error {
	if _, err := w.f.Seek(0, 0); err != nil {
		return err
	}
	sc := bufio.NewScanner(w.f)
	var pending error
	for sc.Scan() {
		if pending != nil {
			return pending
		}
		r, err := parseRecord(sc.Text())
		if err != nil {
			pending = err
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (w *WAL) Close() error { return w.f.Close() }
