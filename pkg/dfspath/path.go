// Package dfspath is the namespace path value used by every GridDFS client surface.
package dfspath

import (
	"errors"
	"path"
	"strings"
)

var ErrInvalid = errors.New("invalid path")

// Path is an absolute, cleaned slash-separated path. The zero value is the root.
type Path struct {
	p string
}

var Root = Path{}

// Parse accepts an absolute path.
func Parse(s string) (Path, error) {
	if s == "" || !strings.HasPrefix(s, "/") || strings.ContainsRune(s, 0) {
		return Path{}, ErrInvalid
	}
	return clean(s), nil
}

// MustParse is Parse for literals.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func clean(s string) Path {
	c := path.Clean(s)
	if c == "/" {
		return Root
	}
	return Path{p: c}
}

// Resolve interprets s against the working directory p: absolute paths stand alone, "." is
// p, ".." is its parent (the root is its own parent), anything else is joined under p.
func (p Path) Resolve(s string) Path {
	if s == "" {
		return p
	}
	if strings.HasPrefix(s, "/") {
		return clean(s)
	}
	return clean(p.String() + "/" + s)
}

func (p Path) String() string {
	if p.p == "" {
		return "/"
	}
	return p.p
}

func (p Path) IsRoot() bool { return p.p == "" }

func (p Path) Parent() Path {
	if p.IsRoot() {
		return Root
	}
	return clean(path.Dir(p.p))
}

// Base is the last element, "" for the root.
func (p Path) Base() string {
	if p.IsRoot() {
		return ""
	}
	return path.Base(p.p)
}

func (p Path) Join(elem ...string) Path {
	return clean(path.Join(append([]string{p.String()}, elem...)...))
}

func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Path) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
