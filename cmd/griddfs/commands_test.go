package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"griddfs/pkg/dfspath"
	"griddfs/pkg/namenode"
	"griddfs/pkg/session"
	"griddfs/pkg/transfer"
)

func pipedPrompter(input string) *prompter {
	return &prompter{in: bufio.NewReader(strings.NewReader(input)), out: io.Discard}
}

func TestPasswordsFromPipe(t *testing.T) {
	p := pipedPrompter("secret\r\nsecret\nlast")
	for i, want := range []string{"secret", "secret", "last"} {
		got, err := p.password("password: ")
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("read %d = %q, want %q", i, got, want)
		}
	}
	if _, err := p.password("password: "); !errors.Is(err, io.EOF) {
		t.Fatalf("read past input: err = %v, want EOF", err)
	}
}

type fakeDirs map[string]bool

func (d fakeDirs) IsDir(_ context.Context, _ session.Session, p dfspath.Path) (bool, error) {
	if p.String() == "/broken" {
		return false, errors.New("namenode unreachable")
	}
	return p.IsRoot() || d[p.String()], nil
}

func TestUploadTarget(t *testing.T) {
	sess := session.New("u1", "alice").Chdir("/docs")
	known := fakeDirs{"/docs": true, "/docs/old": true, "/music": true}
	tests := []struct {
		local, remote, want string
	}{
		{"/tmp/report.pdf", "", "/docs/report.pdf"},
		{"report.pdf", "old", "/docs/old/report.pdf"},
		{"report.pdf", "/music", "/music/report.pdf"},
		{"report.pdf", "/", "/report.pdf"},
		{"report.pdf", "final.pdf", "/docs/final.pdf"},
		{"report.pdf", "../music/x.pdf", "/music/x.pdf"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.local, tt.remote), func(t *testing.T) {
			got, err := uploadTarget(context.Background(), known, sess, tt.local, tt.remote)
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
	if _, err := uploadTarget(context.Background(), known, sess, "a", "/broken"); err == nil {
		t.Fatal("lookup failure not reported")
	}
}

func TestDownloadTarget(t *testing.T) {
	sess := session.New("u1", "alice").Chdir("/docs")
	tests := []struct {
		remote, local, wantRemote, wantLocal string
	}{
		{"report.pdf", "", "/docs/report.pdf", "downloaded_report.pdf"},
		{"/music/song.mp3", "", "/music/song.mp3", "downloaded_song.mp3"},
		{"report.pdf", "out.pdf", "/docs/report.pdf", "out.pdf"},
	}
	for _, tt := range tests {
		remote, local := downloadTarget(sess, tt.remote, tt.local)
		if remote.String() != tt.wantRemote || local != tt.wantLocal {
			t.Errorf("downloadTarget(%q, %q) = %s, %s; want %s, %s",
				tt.remote, tt.local, remote, local, tt.wantRemote, tt.wantLocal)
		}
	}
}

func TestExplain(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&transfer.BlockCommitError{Ordinal: 2, BlockID: "f_blk_2"}, "no replica accepted block 2"},
		{fmt.Errorf("get: %w", &transfer.BlockUnavailableError{Ordinal: 1, BlockID: "f_blk_1"}), "block 1 (f_blk_1) unavailable"},
		{&namenode.NotFoundError{Path: "/x"}, "/x: no such file or directory"},
		{namenode.ErrNoDataNodes, "start a datanode"},
	}
	for _, tt := range tests {
		if got := explain(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("explain(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}
