// Package namenode talks to the GridDFS metadata authority and contains a reference
// implementation of it.
package namenode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"griddfs/pkg/api"
	"griddfs/pkg/dfspath"
	"griddfs/pkg/plan"
	"griddfs/pkg/session"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const DefaultTimeout = 10 * time.Second

const msgNoDataNodes = "no DataNodes registered"

var (
	ErrExists       = errors.New("already exists")
	ErrNoDataNodes  = errors.New("no datanodes available")
	ErrPrecondition = errors.New("failed precondition")
)

// NotFoundError reports a path the authority does not know for the caller.
type NotFoundError struct {
	Path string
	Msg  string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s: not found: %s", e.Path, e.Msg) }

// AuthorizationError reports an unknown user, a bad login or a denied operation.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return "not authorized: " + e.Msg }

// Client is the NameNode client used by the CLI, the gateway and DataNode agents.
type Client struct {
	conn    *grpc.ClientConn
	rpc     api.NameNodeServiceClient
	timeout time.Duration
}

// Dial prepares a connection to the NameNode at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient("passthrough:///"+addr, api.DialOptions(opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial namenode %s: %w", addr, err)
	}
	c := NewClient(conn)
	c.conn = conn
	return c, nil
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{rpc: api.NewNameNodeServiceClient(cc), timeout: DefaultTimeout}
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// convert maps a gRPC status onto the client's error types.
func convert(path string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return &NotFoundError{Path: path, Msg: st.Message()}
	case codes.Unauthenticated, codes.PermissionDenied:
		return &AuthorizationError{Msg: st.Message()}
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", path, ErrExists)
	case codes.FailedPrecondition:
		if st.Message() == msgNoDataNodes {
			return ErrNoDataNodes
		}
		return fmt.Errorf("%s: %w: %s", path, ErrPrecondition, st.Message())
	default:
		return fmt.Errorf("namenode: %w", err)
	}
}

func (c *Client) Login(ctx context.Context, username, password string) (session.Session, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	resp, err := c.rpc.LoginUser(ctx, &api.Credentials{Username: username, Password: password})
	if err != nil {
		return session.Session{}, convert("", err)
	}
	if !resp.Success {
		return session.Session{}, &AuthorizationError{Msg: resp.Message}
	}
	return session.New(resp.UserID, username), nil
}

func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	resp, err := c.rpc.RegisterUser(ctx, &api.Credentials{Username: username, Password: password})
	if err != nil {
		return "", convert("", err)
	}
	if !resp.Success {
		return "", fmt.Errorf("register %s: %s", username, resp.Message)
	}
	return resp.UserID, nil
}

func toPlan(path dfspath.Path, owner string, size, blockSize int64, blocks []api.BlockInfo) *plan.BlockPlan {
	p := &plan.BlockPlan{Path: path.String(), OwnerID: owner, Size: size, BlockSize: blockSize}
	for i, b := range blocks {
		d := plan.BlockDescriptor{BlockID: b.BlockID, Ordinal: i, Size: b.Size}
		for _, dn := range b.DataNodes {
			d.Replicas = append(d.Replicas, plan.ReplicaTarget{NodeID: dn.ID, Addr: dn.Address})
		}
		p.Blocks = append(p.Blocks, d)
	}
	return p
}

// CreateFile registers a new file and returns the plan to write it with.
func (c *Client) CreateFile(ctx context.Context, sess session.Session, path dfspath.Path, size int64) (*plan.BlockPlan, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	resp, err := c.rpc.CreateFile(ctx, &api.CreateFileRequest{Filename: path.String(), Filesize: size, UserID: sess.UserID})
	if err != nil {
		return nil, convert(path.String(), err)
	}
	return toPlan(path, sess.UserID, size, resp.BlockSize, resp.Blocks), nil
}

// GetFileInfo returns the plan of an existing file, replicas in read preference order.
func (c *Client) GetFileInfo(ctx context.Context, sess session.Session, path dfspath.Path) (*plan.BlockPlan, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	resp, err := c.rpc.GetFileInfo(ctx, &api.GetFileInfoRequest{Filename: path.String(), UserID: sess.UserID})
	if err != nil {
		return nil, convert(path.String(), err)
	}
	return toPlan(path, resp.OwnerID, resp.Size, resp.BlockSize, resp.Blocks), nil
}

type Entry struct {
	Name    string
	OwnerID string
	Size    int64
	Created time.Time
	IsDir   bool
}

func (c *Client) List(ctx context.Context, sess session.Session, dir dfspath.Path) ([]Entry, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	resp, err := c.rpc.ListFiles(ctx, &api.ListFilesRequest{Directory: dir.String(), UserID: sess.UserID})
	if err != nil {
		return nil, convert(dir.String(), err)
	}
	out := make([]Entry, 0, len(resp.Files))
	for _, f := range resp.Files {
		out = append(out, Entry{
			Name:    f.Filename,
			OwnerID: f.OwnerID,
			Size:    f.Size,
			Created: time.UnixMilli(f.CreatedTime),
			IsDir:   f.IsDir,
		})
	}
	return out, nil
}

func result(path string, resp *api.Result, err error) error {
	if err != nil {
		return convert(path, err)
	}
	if !resp.Success {
		return fmt.Errorf("%s: %s", path, resp.Message)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, sess session.Session, path dfspath.Path) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	resp, err := c.rpc.DeleteFile(ctx, &api.DeleteFileRequest{Filename: path.String(), UserID: sess.UserID})
	return result(path.String(), resp, err)
}

func (c *Client) Mkdir(ctx context.Context, sess session.Session, dir dfspath.Path) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	resp, err := c.rpc.CreateDirectory(ctx, &api.DirectoryRequest{Directory: dir.String(), UserID: sess.UserID})
	return result(dir.String(), resp, err)
}

func (c *Client) Rmdir(ctx context.Context, sess session.Session, dir dfspath.Path) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	resp, err := c.rpc.RemoveDirectory(ctx, &api.DirectoryRequest{Directory: dir.String(), UserID: sess.UserID})
	return result(dir.String(), resp, err)
}

// IsDir reports whether dir exists as a directory of the session's user.
func (c *Client) IsDir(ctx context.Context, sess session.Session, dir dfspath.Path) (bool, error) {
	if dir.IsRoot() {
		return true, nil
	}
	_, err := c.List(ctx, sess, dir)
	var nf *NotFoundError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &nf), errors.Is(err, ErrPrecondition):
		return false, nil
	default:
		return false, err
	}
}

func (c *Client) RegisterDataNode(ctx context.Context, info api.DataNodeInfo) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	resp, err := c.rpc.RegisterDataNode(ctx, &api.RegisterDataNodeRequest{DataNode: info})
	return result(info.ID, resp, err)
}

// Heartbeat returns false when the NameNode no longer knows the node.
func (c *Client) Heartbeat(ctx context.Context, nodeID string, free int64) (bool, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	resp, err := c.rpc.Heartbeat(ctx, &api.HeartbeatRequest{DataNodeID: nodeID, FreeSpace: free})
	if err != nil {
		return false, convert(nodeID, err)
	}
	return resp.Success, nil
}

func (c *Client) BlockReport(ctx context.Context, nodeID string, blockIDs []string) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	resp, err := c.rpc.BlockReport(ctx, &api.BlockReportRequest{DataNodeID: nodeID, BlockIDs: blockIDs})
	return result(nodeID, resp, err)
}
