// Package session carries the caller's identity and working directory as an explicit value.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"griddfs/pkg/dfspath"

	"gopkg.in/yaml.v3"
)

var ErrNoSession = errors.New("no active session, use login first")

// Session is built once by the command layer and passed to every call that needs it.
type Session struct {
	UserID   string       `yaml:"user_id"`
	Username string       `yaml:"username"`
	Cwd      dfspath.Path `yaml:"cwd"`
}

func New(userID, username string) Session {
	return Session{UserID: userID, Username: username, Cwd: dfspath.Root}
}

func (s Session) Authenticated() bool { return s.UserID != "" }

// Resolve maps a user supplied path onto the namespace using the working directory.
func (s Session) Resolve(p string) dfspath.Path {
	return s.Cwd.Resolve(p)
}

// Chdir returns a copy of s with its working directory moved to p.
func (s Session) Chdir(p string) Session {
	s.Cwd = s.Cwd.Resolve(p)
	return s
}

// FileStore persists one session per terminal as a YAML file.
type FileStore struct {
	path string
}

func NewFileStore(dir, terminal string) *FileStore {
	return &FileStore{path: filepath.Join(dir, fmt.Sprintf("session_%s.yaml", terminal))}
}

// DefaultFileStore keeps sessions under ~/.griddfs, keyed by GRIDDFS_TERMINAL or, when unset,
// by the parent process id so every shell gets its own session.
func DefaultFileStore() (*FileStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	terminal := os.Getenv("GRIDDFS_TERMINAL")
	if terminal == "" {
		terminal = strconv.Itoa(os.Getppid())
	}
	return NewFileStore(filepath.Join(home, ".griddfs"), terminal), nil
}

func (fs *FileStore) Path() string { return fs.path }

func (fs *FileStore) Load() (Session, error) {
	b, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", fs.path, err)
	}
	if !s.Authenticated() {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func (fs *FileStore) Save(s Session) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return err
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, fs.path)
}

func (fs *FileStore) Clear() error {
	err := os.Remove(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
