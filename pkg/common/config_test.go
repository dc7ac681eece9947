package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
)

func TestLoadOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datanode.yaml")
	err := os.WriteFile(path, []byte(`
id: dn7
capacity: 10GB
read_chunk_size: 256KB
heartbeat_interval: 2s
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	c := DefaultDataNodeConfig()
	if err := Load(path, &c); err != nil {
		t.Fatal(err)
	}
	if c.ID != "dn7" || c.Capacity != 10*datasize.GB || c.ReadChunkSize != 256*datasize.KB || c.HeartbeatInterval != 2*time.Second {
		t.Fatalf("config = %+v", c)
	}
	if c.Addr != ":50051" || c.NameNode != "localhost:50050" {
		t.Fatalf("defaults lost: %+v", c)
	}
}

func TestLoadErrors(t *testing.T) {
	c := DefaultClientConfig()
	if err := Load("", &c); err != nil {
		t.Fatalf("empty path: %v", err)
	}
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if err := Load(missing, &c); err == nil {
		t.Fatal("missing file loaded")
	}
	if err := LoadOptional(missing, &c); err != nil {
		t.Fatalf("optional missing file: %v", err)
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("block_size: lots\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Load(bad, &c); err == nil {
		t.Fatal("bad size accepted")
	}
}

func TestClientEnv(t *testing.T) {
	t.Setenv(EnvNameNode, "nn.example:6000")
	c := DefaultClientConfig()
	c.ApplyEnv()
	if c.NameNode != "nn.example:6000" {
		t.Fatalf("namenode = %q", c.NameNode)
	}
	if c.BlockSize.Bytes() != 1<<20 {
		t.Fatalf("block size = %d", c.BlockSize.Bytes())
	}
}
