// Package common holds the configuration shared by the GridDFS binaries.
package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// EnvNameNode overrides the NameNode address of client configs.
const EnvNameNode = "GRIDDFS_NAMENODE"

type ClientConfig struct {
	NameNode            string            `yaml:"namenode"`
	BlockSize           datasize.ByteSize `yaml:"block_size"`
	ChunkSize           datasize.ByteSize `yaml:"chunk_size"`
	CallTimeout         time.Duration     `yaml:"call_timeout"`
	WriteParallelism    int               `yaml:"write_parallelism"`
	CompensatingDeletes bool              `yaml:"compensating_deletes"`
	LogLevel            string            `yaml:"log_level"`
}

type NameNodeConfig struct {
	Addr              string            `yaml:"addr"`
	Etcd              []string          `yaml:"etcd"`
	DataDir           string            `yaml:"data_dir"` // badger dir, used when etcd is empty
	BlockSize         datasize.ByteSize `yaml:"block_size"`
	ReplicationFactor int               `yaml:"replication_factor"`
	NodeTTL           time.Duration     `yaml:"node_ttl"`
	LogLevel          string            `yaml:"log_level"`
}

type DataNodeConfig struct {
	ID                string            `yaml:"id"`
	Addr              string            `yaml:"addr"`
	Advertise         string            `yaml:"advertise"` // address given to the NameNode, defaults to Addr
	DataDir           string            `yaml:"data_dir"`
	NameNode          string            `yaml:"namenode"`
	Capacity          datasize.ByteSize `yaml:"capacity"`
	ReadChunkSize     datasize.ByteSize `yaml:"read_chunk_size"`
	HeartbeatInterval time.Duration     `yaml:"heartbeat_interval"`
	LogLevel          string            `yaml:"log_level"`
}

type GatewayConfig struct {
	Addr          string            `yaml:"addr"`
	MaxUpload     datasize.ByteSize `yaml:"max_upload"`
	PresignSecret string            `yaml:"presign_secret"`
	PresignTTL    time.Duration     `yaml:"presign_ttl"`
	BaseURL       string            `yaml:"base_url"`
	Client        ClientConfig      `yaml:"client"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		NameNode:    "localhost:50050",
		BlockSize:   datasize.MB,
		ChunkSize:   64 * datasize.KB,
		CallTimeout: 30 * time.Second,
		LogLevel:    "warn",
	}
}

func DefaultNameNodeConfig() NameNodeConfig {
	return NameNodeConfig{
		Addr:              ":50050",
		BlockSize:         datasize.MB,
		ReplicationFactor: 2,
		NodeTTL:           30 * time.Second,
		LogLevel:          "info",
	}
}

func DefaultDataNodeConfig() DataNodeConfig {
	return DataNodeConfig{
		ID:                "dn1",
		Addr:              ":50051",
		DataDir:           "./data",
		NameNode:          "localhost:50050",
		ReadChunkSize:     128 * datasize.KB,
		HeartbeatInterval: 5 * time.Second,
		LogLevel:          "info",
	}
}

func DefaultGatewayConfig() GatewayConfig {
	c := DefaultClientConfig()
	c.LogLevel = "info"
	return GatewayConfig{
		Addr:       ":8080",
		MaxUpload:  64 * datasize.MB,
		PresignTTL: 15 * time.Minute,
		Client:     c,
	}
}

// Load decodes the YAML file at path over out, keeping values the file does not set.
// An empty path leaves out untouched.
func Load(path string, out any) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadOptional is Load that ignores a missing file.
func LoadOptional(path string, out any) error {
	err := Load(path, out)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv applies environment overrides.
func (c *ClientConfig) ApplyEnv() {
	if v := os.Getenv(EnvNameNode); v != "" {
		c.NameNode = v
	}
}
