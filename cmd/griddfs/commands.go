package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"griddfs/pkg/dfspath"
	"griddfs/pkg/plan"
	"griddfs/pkg/session"
	"griddfs/pkg/transfer"
	"griddfs/pkg/transport"

	"github.com/c2h5oh/datasize"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "login",
			Usage:     "log in and start a session for this terminal",
			ArgsUsage: "<username>",
			Action:    action(login),
		},
		{
			Name:      "register",
			Usage:     "create a user",
			ArgsUsage: "<username>",
			Action:    action(register),
		},
		{
			Name:   "logout",
			Usage:  "end the session of this terminal",
			Action: action(logout),
		},
		{
			Name:   "whoami",
			Action: authed(whoami),
		},
		{
			Name:      "put",
			Aliases:   []string{"upload"},
			Usage:     "upload a local file",
			ArgsUsage: "<local> [remote]",
			Action:    authed(put),
		},
		{
			Name:      "get",
			Aliases:   []string{"download"},
			Usage:     "download a file",
			ArgsUsage: "<remote> [local]",
			Action:    authed(get),
		},
		{
			Name:      "ls",
			ArgsUsage: "[dir]",
			Action:    authed(ls),
		},
		{
			Name:      "rm",
			ArgsUsage: "<path>",
			Action:    authed(rm),
		},
		{
			Name:      "mkdir",
			ArgsUsage: "<dir>",
			Action:    authed(mkdir),
		},
		{
			Name:      "rmdir",
			ArgsUsage: "<dir>",
			Action:    authed(rmdir),
		},
		{
			Name:      "cd",
			ArgsUsage: "[dir]",
			Action:    authed(cd),
		},
		{
			Name:   "pwd",
			Action: authed(pwd),
		},
		{
			Name:  "nodes",
			Usage: "inspect datanodes",
			Subcommands: []*cli.Command{
				{
					Name:      "ping",
					Usage:     "check datanode health",
					ArgsUsage: "<addr>...",
					Flags: []cli.Flag{
						&cli.DurationFlag{Name: "timeout", Value: 3 * time.Second},
					},
					Action: ping,
				},
			},
		},
	}
}

func needArgs(c *cli.Context, n int) error {
	if c.NArg() < n {
		return fmt.Errorf("usage: %s %s", c.Command.FullName(), c.Command.ArgsUsage)
	}
	return nil
}

// prompter reads secrets from a terminal without echo, or line by line from a pipe. One
// buffered reader serves every prompt so piped input is not lost between them.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func newPrompter(f *os.File, out io.Writer) *prompter {
	fd := int(f.Fd())
	return &prompter{in: bufio.NewReader(f), out: out, fd: fd, tty: term.IsTerminal(fd)}
}

var console = newPrompter(os.Stdin, os.Stderr)

func (p *prompter) password(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if p.tty {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		return string(b), err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func login(c *cli.Context, e *env) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	pw, err := console.password("password: ")
	if err != nil {
		return err
	}
	sess, err := e.nn.Login(c.Context, c.Args().First(), pw)
	if err != nil {
		return err
	}
	if err := e.sessions.Save(sess); err != nil {
		return err
	}
	fmt.Println(color.GreenString("logged in as %s", sess.Username))
	return nil
}

func register(c *cli.Context, e *env) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	pw, err := console.password("password: ")
	if err != nil {
		return err
	}
	again, err := console.password("repeat password: ")
	if err != nil {
		return err
	}
	if pw != again {
		return errors.New("passwords do not match")
	}
	if _, err := e.nn.Register(c.Context, c.Args().First(), pw); err != nil {
		return err
	}
	fmt.Println(color.GreenString("user %s registered, use login to start a session", c.Args().First()))
	return nil
}

func logout(_ *cli.Context, e *env) error {
	return e.sessions.Clear()
}

func whoami(_ *cli.Context, _ *env, sess session.Session) error {
	fmt.Printf("%s (%s)\n", sess.Username, sess.UserID)
	return nil
}

func put(c *cli.Context, e *env, sess session.Session) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	local := c.Args().Get(0)
	content, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	remote, err := uploadTarget(c.Context, e.nn, sess, local, c.Args().Get(1))
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := e.engine().Upload(c.Context, sess, remote, content)
	if err != nil {
		var commit *transfer.BlockCommitError
		if errors.As(err, &commit) && res != nil {
			warnAborted(res)
		}
		return err
	}
	fmt.Printf("%s %s (%s, %d blocks, %s)\n",
		color.GreenString("uploaded"), remote,
		datasize.ByteSize(res.Bytes).HumanReadable(), len(res.Blocks),
		time.Since(start).Round(time.Millisecond))
	for _, b := range res.Blocks {
		if f := b.Failed(); f > 0 {
			fmt.Println(color.YellowString("  block %d: %d/%d replicas failed", b.Ordinal, f, len(b.Attempts)))
		}
	}
	return nil
}

type dirChecker interface {
	IsDir(ctx context.Context, sess session.Session, dir dfspath.Path) (bool, error)
}

// uploadTarget is where put stores local: the working directory when remote is empty, inside
// remote when it names a directory, remote itself otherwise.
func uploadTarget(ctx context.Context, dirs dirChecker, sess session.Session, local, remote string) (dfspath.Path, error) {
	name := filepath.Base(local)
	if remote == "" {
		return sess.Cwd.Join(name), nil
	}
	p := sess.Resolve(remote)
	isDir, err := dirs.IsDir(ctx, sess, p)
	if err != nil {
		return dfspath.Path{}, err
	}
	if isDir {
		return p.Join(name), nil
	}
	return p, nil
}

// downloadTarget resolves remote and picks the local file name, downloaded_<name> by default.
func downloadTarget(sess session.Session, remote, local string) (dfspath.Path, string) {
	p := sess.Resolve(remote)
	if local == "" {
		local = "downloaded_" + p.Base()
	}
	return p, local
}

func warnAborted(res *transfer.UploadResult) {
	committed := res.Committed()
	if len(committed) == 0 {
		return
	}
	ords := make([]string, 0, len(committed))
	for _, b := range committed {
		ords = append(ords, fmt.Sprint(b.Ordinal))
	}
	msg := fmt.Sprintf("warning: blocks %s were stored before the upload failed", strings.Join(ords, ","))
	if res.Unregistered {
		msg += "; the file was not created"
	}
	if res.Compensated > 0 {
		msg += fmt.Sprintf(", %d replica copies removed", res.Compensated)
	}
	fmt.Fprintln(os.Stderr, color.YellowString("%s", msg))
}

func get(c *cli.Context, e *env, sess session.Session) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	remote, local := downloadTarget(sess, c.Args().Get(0), c.Args().Get(1))

	res, err := e.engine().Download(c.Context, sess, remote)
	if err != nil {
		return err
	}
	if err := os.WriteFile(local, res.Content, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s %s -> %s (%s)\n", color.GreenString("downloaded"), remote, local,
		datasize.ByteSize(len(res.Content)).HumanReadable())
	for _, b := range res.Blocks {
		if b.ServedIndex > 0 {
			fmt.Println(color.YellowString("  block %d served by replica %d (%s)", b.Ordinal, b.ServedIndex, b.ServedBy))
		}
	}
	return nil
}

func ls(c *cli.Context, e *env, sess session.Session) error {
	dir := sess.Cwd
	if c.NArg() > 0 {
		dir = sess.Resolve(c.Args().First())
	}
	entries, err := e.nn.List(c.Context, sess, dir)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, ent := range entries {
		name, size := ent.Name, datasize.ByteSize(ent.Size).HumanReadable()
		if ent.IsDir {
			name, size = color.BlueString(ent.Name+"/"), "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", size, ent.Created.Format(time.DateTime), name)
	}
	return w.Flush()
}

func rm(c *cli.Context, e *env, sess session.Session) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	return e.nn.Delete(c.Context, sess, sess.Resolve(c.Args().First()))
}

func mkdir(c *cli.Context, e *env, sess session.Session) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	return e.nn.Mkdir(c.Context, sess, sess.Resolve(c.Args().First()))
}

func rmdir(c *cli.Context, e *env, sess session.Session) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	return e.nn.Rmdir(c.Context, sess, sess.Resolve(c.Args().First()))
}

func cd(c *cli.Context, e *env, sess session.Session) error {
	target := dfspath.Root
	if c.NArg() > 0 {
		target = sess.Resolve(c.Args().First())
	}
	ok, err := e.nn.IsDir(c.Context, sess, target)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: not a directory", target)
	}
	sess.Cwd = target
	if err := e.sessions.Save(sess); err != nil {
		return err
	}
	fmt.Println(target)
	return nil
}

func pwd(_ *cli.Context, _ *env, sess session.Session) error {
	fmt.Println(sess.Cwd)
	return nil
}

func ping(c *cli.Context) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	down := 0
	for _, addr := range c.Args().Slice() {
		r, err := transport.Dial(plan.ReplicaTarget{NodeID: addr, Addr: addr}, transport.WithCallTimeout(c.Duration("timeout")))
		if err == nil {
			err = r.Ping(c.Context)
			r.Close()
		}
		if err != nil {
			down++
			fmt.Printf("%s %s: %v\n", color.RedString("DOWN"), addr, err)
			continue
		}
		fmt.Printf("%s %s\n", color.GreenString("UP  "), addr)
	}
	if down > 0 {
		return fmt.Errorf("%d of %d nodes down", down, c.NArg())
	}
	return nil
}
