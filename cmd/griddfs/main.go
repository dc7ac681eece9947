package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"griddfs/pkg/common"
	"griddfs/pkg/namenode"
	"griddfs/pkg/session"
	"griddfs/pkg/transfer"
	"griddfs/pkg/transport"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// env is what every command works against.
type env struct {
	cfg      common.ClientConfig
	nn       *namenode.Client
	sessions *session.FileStore
}

func newEnv(c *cli.Context) (*env, error) {
	cfg := common.DefaultClientConfig()
	path := c.String("config")
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".griddfs", "config.yaml")
		}
		if err := common.LoadOptional(path, &cfg); err != nil {
			return nil, err
		}
	} else if err := common.Load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if c.IsSet("namenode") {
		cfg.NameNode = c.String("namenode")
	}
	if c.Bool("verbose") {
		cfg.LogLevel = "debug"
	}
	common.SetupLogging(cfg.LogLevel, true)

	sessions, err := session.DefaultFileStore()
	if err != nil {
		return nil, err
	}
	nn, err := namenode.Dial(cfg.NameNode)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, nn: nn, sessions: sessions}, nil
}

func (e *env) engine() *transfer.Engine {
	dialer := transport.NewDialer(
		transport.WithChunkSize(int(e.cfg.ChunkSize.Bytes())),
		transport.WithCallTimeout(e.cfg.CallTimeout))
	opts := []transfer.Option{
		transfer.WithBlockSize(int64(e.cfg.BlockSize.Bytes())),
		transfer.WithWriteParallelism(e.cfg.WriteParallelism),
		transfer.WithLogger(log.Logger),
	}
	if e.cfg.CompensatingDeletes {
		opts = append(opts, transfer.WithCompensatingDeletes())
	}
	return transfer.New(e.nn, dialer, opts...)
}

// action wraps a command body with environment setup and teardown.
func action(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := newEnv(c)
		if err != nil {
			return err
		}
		defer e.nn.Close()
		return fn(c, e)
	}
}

// authed is action for commands that need a logged in session.
func authed(fn func(c *cli.Context, e *env, sess session.Session) error) cli.ActionFunc {
	return action(func(c *cli.Context, e *env) error {
		sess, err := e.sessions.Load()
		if err != nil {
			return err
		}
		return fn(c, e, sess)
	})
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "griddfs",
		Usage: "GridDFS client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "client config file"},
			&cli.StringFlag{Name: "namenode", Aliases: []string{"n"}, Usage: "namenode address", EnvVars: []string{common.EnvNameNode}},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		},
		Commands: commands(),
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %s", explain(err)))
		os.Exit(1)
	}
}

// explain renders the errors a user can act on.
func explain(err error) string {
	var (
		commit  *transfer.BlockCommitError
		unavail *transfer.BlockUnavailableError
		nf      *namenode.NotFoundError
		auth    *namenode.AuthorizationError
	)
	switch {
	case errors.Is(err, session.ErrNoSession):
		return err.Error()
	case errors.As(err, &commit):
		return fmt.Sprintf("upload failed: no replica accepted block %d (%s)", commit.Ordinal, commit.BlockID)
	case errors.As(err, &unavail):
		return fmt.Sprintf("download failed: block %d (%s) unavailable on all replicas", unavail.Ordinal, unavail.BlockID)
	case errors.As(err, &nf):
		return fmt.Sprintf("%s: no such file or directory", nf.Path)
	case errors.As(err, &auth):
		return err.Error()
	case errors.Is(err, namenode.ErrNoDataNodes):
		return "no datanodes available, start a datanode first"
	default:
		return err.Error()
	}
}
