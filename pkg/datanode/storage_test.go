package datanode

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestStoragePutGetDelete(t *testing.T) {
	st, err := OpenStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	data := bytes.Repeat([]byte("block"), 1000)
	if err := st.Put("f_blk_0", data); err != nil {
		t.Fatal(err)
	}
	got, err := st.Get("f_blk_0")
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("get = %d bytes, %v", len(got), err)
	}
	if st.Used() != int64(len(data)) {
		t.Errorf("used = %d, want %d", st.Used(), len(data))
	}
	ok, err := st.Delete("f_blk_0")
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	if ok, _ := st.Delete("f_blk_0"); ok {
		t.Error("second delete reported success")
	}
	if _, err := st.Get("f_blk_0"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestStorageRejectsBadIDs(t *testing.T) {
	st, err := OpenStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	for _, id := range []string{"", "a b", "../x", "a\nb"} {
		if err := st.Put(id, []byte("x")); !errors.Is(err, ErrInvalidID) {
			t.Errorf("put %q: err = %v, want %v", id, err, ErrInvalidID)
		}
	}
}

func TestStorageReplay(t *testing.T) {
	dir := t.TempDir()
	st, err := OpenStorage(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a_blk_0", "a_blk_1", "b_blk_0"} {
		if err := st.Put(id, []byte(id)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := st.Delete("a_blk_1"); err != nil {
		t.Fatal(err)
	}
	st.Close()

	// a logged PUT whose block file never landed, then a torn record
	wal, err := os.OpenFile(filepath.Join(dir, "wal", "wal.log"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	wal.WriteString("PUT lost_blk_0 3 00\nPUT torn")
	wal.Close()

	st, err = OpenStorage(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got := st.Blocks()
	if len(got) != 2 || got[0] != "a_blk_0" || got[1] != "b_blk_0" {
		t.Fatalf("blocks after replay = %v", got)
	}
}

func TestStorageCorruptWAL(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "wal"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "wal", "wal.log"), []byte("garbage\nDEL x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenStorage(dir); err == nil {
		t.Fatal("opened storage over a corrupt wal")
	}
}

func TestStorageConcurrentPutsOfOneBlock(t *testing.T) {
	st, err := OpenStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	payloads := make([][]byte, 8)
	for i := range payloads {
		payloads[i] = bytes.Repeat([]byte{byte('a' + i)}, 256<<10-i)
	}
	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := st.Put("hot_blk_0", p); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, err := st.Get("hot_blk_0")
	if err != nil {
		t.Fatal(err)
	}
	whole := false
	for _, p := range payloads {
		whole = whole || bytes.Equal(got, p)
	}
	if !whole {
		t.Fatalf("stored block is a mix of writes (%d bytes)", len(got))
	}

	// no temp files are left behind
	err = filepath.WalkDir(filepath.Join(st.base, "blocks"), func(path string, d os.DirEntry, err error) error {
		if err == nil && strings.HasSuffix(path, ".tmp") {
			t.Errorf("left over temp file %s", path)
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}
