package namenode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"griddfs/pkg/api"
	"griddfs/pkg/dfspath"
	"griddfs/pkg/meta"
	"griddfs/pkg/placement"
	"griddfs/pkg/plan"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const (
	DefaultReplicationFactor = 2
	DefaultNodeTTL           = 30 * time.Second
)

// Service is the reference metadata authority.
type Service struct {
	api.UnimplementedNameNodeServiceServer

	store     meta.Store
	blockSize int64
	rf        int
	log       zerolog.Logger

	live *cache.Cache // node id -> api.DataNodeInfo, expires without heartbeats

	mu    sync.RWMutex
	known map[string]api.DataNodeInfo // every node ever registered
}

type ServiceOption func(*Service)

func WithServiceBlockSize(n int64) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.blockSize = n
		}
	}
}

func WithReplicationFactor(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.rf = n
		}
	}
}

// WithNodeTTL sets how long a DataNode stays live after its last heartbeat.
func WithNodeTTL(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.live = cache.New(d, d)
		}
	}
}

func WithServiceLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

func NewService(store meta.Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		blockSize: plan.DefaultBlockSize,
		rf:        DefaultReplicationFactor,
		log:       log.Logger,
		live:      cache.New(DefaultNodeTTL, DefaultNodeTTL),
		known:     make(map[string]api.DataNodeInfo),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs the service and a health service on g.
func (s *Service) Register(g *grpc.Server) {
	api.RegisterNameNodeServiceServer(g, s)
	grpc_health_v1.RegisterHealthServer(g, health.NewServer())
}

// Serve listens on addr until the listener fails.
func (s *Service) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	g := grpc.NewServer(api.ServerOptions()...)
	s.Register(g)
	s.log.Info().Str("addr", addr).Msg("NameNode listening")
	return g.Serve(lis)
}

func storeErr(err error, what string) error {
	switch {
	case errors.Is(err, meta.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s not found", what)
	case errors.Is(err, meta.ErrExists):
		return status.Errorf(codes.AlreadyExists, "%s already exists", what)
	case errors.Is(err, meta.ErrConflict):
		return status.Errorf(codes.Aborted, "%s: %v", what, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Errorf(codes.Internal, "%s: %v", what, err)
	}
}

func (s *Service) checkUser(ctx context.Context, userID string) error {
	if userID == "" {
		return status.Error(codes.Unauthenticated, "invalid user")
	}
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		if errors.Is(err, meta.ErrNotFound) {
			return status.Error(codes.Unauthenticated, "invalid user")
		}
		return storeErr(err, "user")
	}
	return nil
}

func parsePath(p string) (dfspath.Path, error) {
	dp, err := dfspath.Parse(p)
	if err != nil {
		return dfspath.Path{}, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	return dp, nil
}

func (s *Service) RegisterUser(ctx context.Context, in *api.Credentials) (*api.UserResponse, error) {
	if in.Username == "" || in.Password == "" {
		return &api.UserResponse{Message: "username and password must not be empty"}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "password: %v", err)
	}
	u := meta.User{ID: uuid.NewString(), Username: in.Username, PasswordHash: hash}
	if err := s.store.PutUser(ctx, u); err != nil {
		if errors.Is(err, meta.ErrExists) {
			return &api.UserResponse{Message: "user already exists"}, nil
		}
		return nil, storeErr(err, "user")
	}
	s.log.Info().Str("user", u.Username).Str("user_id", u.ID).Msg("user registered")
	return &api.UserResponse{Success: true, UserID: u.ID, Message: "user registered"}, nil
}

func (s *Service) LoginUser(ctx context.Context, in *api.Credentials) (*api.UserResponse, error) {
	u, err := s.store.GetUser(ctx, in.Username)
	if errors.Is(err, meta.ErrNotFound) {
		return &api.UserResponse{Message: "user not found"}, nil
	}
	if err != nil {
		return nil, storeErr(err, "user")
	}
	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(in.Password)) != nil {
		return &api.UserResponse{Message: "wrong password"}, nil
	}
	return &api.UserResponse{Success: true, UserID: u.ID, Message: "login ok"}, nil
}

func (s *Service) liveNodes() []placement.Node {
	items := s.live.Items()
	nodes := make([]placement.Node, 0, len(items))
	for _, it := range items {
		info := it.Object.(api.DataNodeInfo)
		nodes = append(nodes, placement.Node{ID: info.ID, Addr: info.Address})
	}
	return nodes
}

func (s *Service) CreateFile(ctx context.Context, in *api.CreateFileRequest) (*api.CreateFileResponse, error) {
	if err := s.checkUser(ctx, in.UserID); err != nil {
		return nil, err
	}
	p, err := parsePath(in.Filename)
	if err != nil {
		return nil, err
	}
	if p.IsRoot() || in.Filesize < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "cannot create %q with %d bytes", in.Filename, in.Filesize)
	}
	if _, err := s.store.GetFile(ctx, in.UserID, p.String()); err == nil {
		return nil, status.Errorf(codes.AlreadyExists, "%s already exists", p)
	}
	nodes := placement.New(s.liveNodes())
	if nodes.Len() == 0 {
		return nil, status.Error(codes.FailedPrecondition, msgNoDataNodes)
	}

	n := plan.BlockCount(in.Filesize, s.blockSize)
	if n == 0 {
		n = 1
	}
	fileID := uuid.NewString()
	f := meta.File{
		Owner:     in.UserID,
		Path:      p.String(),
		Size:      in.Filesize,
		BlockSize: s.blockSize,
		Created:   time.Now().UTC(),
	}
	resp := &api.CreateFileResponse{BlockSize: s.blockSize}
	for i := 0; i < n; i++ {
		start, end := plan.BlockRange(i, in.Filesize, s.blockSize)
		id := fileID + "_blk_" + strconv.Itoa(i)
		picked := nodes.PickN(id, s.rf)
		ref := meta.BlockRef{ID: id, Size: end - start}
		bi := api.BlockInfo{BlockID: id, Size: end - start}
		for _, node := range picked {
			ref.Nodes = append(ref.Nodes, node.ID)
			bi.DataNodes = append(bi.DataNodes, api.DataNodeInfo{ID: node.ID, Address: node.Addr})
		}
		f.Blocks = append(f.Blocks, ref)
		resp.Blocks = append(resp.Blocks, bi)
	}
	if err := s.store.CreateFile(ctx, f); err != nil {
		return nil, storeErr(err, p.String())
	}
	s.log.Info().
		Str("path", p.String()).
		Str("owner", in.UserID).
		Int64("size", in.Filesize).
		Int("blocks", n).
		Msg("file created")
	return resp, nil
}

// blockInfo resolves the node ids of ref to addresses, live nodes first.
func (s *Service) blockInfo(ref meta.BlockRef) api.BlockInfo {
	bi := api.BlockInfo{BlockID: ref.ID, Size: ref.Size}
	var stale []api.DataNodeInfo
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ref.Nodes {
		if v, ok := s.live.Get(id); ok {
			bi.DataNodes = append(bi.DataNodes, v.(api.DataNodeInfo))
			continue
		}
		if info, ok := s.known[id]; ok {
			stale = append(stale, info)
		}
	}
	bi.DataNodes = append(bi.DataNodes, stale...)
	return bi
}

func (s *Service) GetFileInfo(ctx context.Context, in *api.GetFileInfoRequest) (*api.GetFileInfoResponse, error) {
	if err := s.checkUser(ctx, in.UserID); err != nil {
		return nil, err
	}
	p, err := parsePath(in.Filename)
	if err != nil {
		return nil, err
	}
	f, err := s.store.GetFile(ctx, in.UserID, p.String())
	if err != nil {
		return nil, storeErr(err, p.String())
	}
	if f.IsDir {
		return nil, status.Errorf(codes.FailedPrecondition, "%s is a directory", p)
	}
	resp := &api.GetFileInfoResponse{OwnerID: f.Owner, Size: f.Size, BlockSize: f.BlockSize}
	for _, ref := range f.Blocks {
		resp.Blocks = append(resp.Blocks, s.blockInfo(ref))
	}
	return resp, nil
}

func (s *Service) dirExists(ctx context.Context, owner string, dir dfspath.Path) error {
	if dir.IsRoot() {
		return nil
	}
	f, err := s.store.GetFile(ctx, owner, dir.String())
	if err != nil {
		return storeErr(err, "directory "+dir.String())
	}
	if !f.IsDir {
		return status.Errorf(codes.FailedPrecondition, "%s is not a directory", dir)
	}
	return nil
}

// ListFiles returns the direct children of a directory, directories first, each group by name.
func (s *Service) ListFiles(ctx context.Context, in *api.ListFilesRequest) (*api.ListFilesResponse, error) {
	if err := s.checkUser(ctx, in.UserID); err != nil {
		return nil, err
	}
	dir, err := parsePath(in.Directory)
	if err != nil {
		return nil, err
	}
	if err := s.dirExists(ctx, in.UserID, dir); err != nil {
		return nil, err
	}
	all, err := s.store.List(ctx, in.UserID, dir.String())
	if err != nil {
		return nil, storeErr(err, dir.String())
	}
	children := meta.Children(dir.String(), all)
	sort.SliceStable(children, func(i, j int) bool {
		if children[i].IsDir != children[j].IsDir {
			return children[i].IsDir
		}
		return children[i].Name() < children[j].Name()
	})
	resp := &api.ListFilesResponse{Files: make([]api.FileMetadata, 0, len(children))}
	for _, f := range children {
		resp.Files = append(resp.Files, api.FileMetadata{
			Filename:    f.Name(),
			OwnerID:     f.Owner,
			Size:        f.Size,
			CreatedTime: f.Created.UnixMilli(),
			IsDir:       f.IsDir,
		})
	}
	return resp, nil
}

func (s *Service) DeleteFile(ctx context.Context, in *api.DeleteFileRequest) (*api.Result, error) {
	if err := s.checkUser(ctx, in.UserID); err != nil {
		return nil, err
	}
	p, err := parsePath(in.Filename)
	if err != nil {
		return nil, err
	}
	f, err := s.store.GetFile(ctx, in.UserID, p.String())
	if err != nil {
		return nil, storeErr(err, p.String())
	}
	if f.IsDir {
		return nil, status.Errorf(codes.FailedPrecondition, "%s is a directory", p)
	}
	if _, err := s.store.DeleteFile(ctx, in.UserID, p.String()); err != nil {
		return nil, storeErr(err, p.String())
	}
	// TODO: ask the holding DataNodes to drop the blocks instead of leaving them orphaned.
	s.log.Info().Str("path", p.String()).Str("owner", in.UserID).Int("blocks", len(f.Blocks)).Msg("file deleted")
	return &api.Result{Success: true, Message: "file deleted"}, nil
}

func (s *Service) CreateDirectory(ctx context.Context, in *api.DirectoryRequest) (*api.Result, error) {
	if err := s.checkUser(ctx, in.UserID); err != nil {
		return nil, err
	}
	dir, err := parsePath(in.Directory)
	if err != nil {
		return nil, err
	}
	if dir.IsRoot() {
		return nil, status.Error(codes.AlreadyExists, "/ already exists")
	}
	if err := s.dirExists(ctx, in.UserID, dir.Parent()); err != nil {
		return nil, err
	}
	f := meta.File{Owner: in.UserID, Path: dir.String(), IsDir: true, Created: time.Now().UTC()}
	if err := s.store.CreateFile(ctx, f); err != nil {
		return nil, storeErr(err, dir.String())
	}
	return &api.Result{Success: true, Message: "directory created"}, nil
}

func (s *Service) RemoveDirectory(ctx context.Context, in *api.DirectoryRequest) (*api.Result, error) {
	if err := s.checkUser(ctx, in.UserID); err != nil {
		return nil, err
	}
	dir, err := parsePath(in.Directory)
	if err != nil {
		return nil, err
	}
	if dir.IsRoot() {
		return nil, status.Error(codes.InvalidArgument, "cannot remove /")
	}
	if err := s.dirExists(ctx, in.UserID, dir); err != nil {
		return nil, err
	}
	below, err := s.store.List(ctx, in.UserID, dir.String())
	if err != nil {
		return nil, storeErr(err, dir.String())
	}
	if len(below) > 0 {
		return nil, status.Errorf(codes.FailedPrecondition, "%s is not empty", dir)
	}
	if _, err := s.store.DeleteFile(ctx, in.UserID, dir.String()); err != nil {
		return nil, storeErr(err, dir.String())
	}
	return &api.Result{Success: true, Message: "directory removed"}, nil
}

func (s *Service) RegisterDataNode(ctx context.Context, in *api.RegisterDataNodeRequest) (*api.Result, error) {
	info := in.DataNode
	if info.ID == "" || info.Address == "" {
		return nil, status.Error(codes.InvalidArgument, "datanode id and address are required")
	}
	s.mu.Lock()
	s.known[info.ID] = info
	s.mu.Unlock()
	s.live.Set(info.ID, info, cache.DefaultExpiration)
	s.log.Info().Str("node", info.ID).Str("addr", info.Address).Int64("free", info.FreeSpace).Msg("datanode registered")
	return &api.Result{Success: true, Message: "registered"}, nil
}

// Heartbeat refreshes a live node. An unknown or expired node gets Success false and must
// register again.
func (s *Service) Heartbeat(ctx context.Context, in *api.HeartbeatRequest) (*api.Result, error) {
	v, ok := s.live.Get(in.DataNodeID)
	if !ok {
		return &api.Result{Message: "unknown datanode"}, nil
	}
	info := v.(api.DataNodeInfo)
	info.FreeSpace = in.FreeSpace
	s.live.Set(info.ID, info, cache.DefaultExpiration)
	return &api.Result{Success: true}, nil
}

// BlockReport adds the reporting node to the replica list of every known block it holds.
func (s *Service) BlockReport(ctx context.Context, in *api.BlockReportRequest) (*api.Result, error) {
	if _, ok := s.live.Get(in.DataNodeID); !ok {
		return &api.Result{Message: "unknown datanode"}, nil
	}
	var attached, unknown int
	for _, id := range in.BlockIDs {
		ok, err := s.attach(ctx, in.DataNodeID, id)
		if errors.Is(err, meta.ErrNotFound) {
			unknown++
			continue
		}
		if err != nil {
			return nil, storeErr(err, "block "+id)
		}
		if ok {
			attached++
		}
	}
	s.log.Debug().
		Str("node", in.DataNodeID).
		Int("blocks", len(in.BlockIDs)).
		Int("attached", attached).
		Int("unknown", unknown).
		Msg("block report")
	return &api.Result{Success: true, Message: fmt.Sprintf("%d attached, %d unknown", attached, unknown)}, nil
}

func (s *Service) attach(ctx context.Context, nodeID, blockID string) (bool, error) {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		var f meta.File
		f, err = s.store.FileByBlock(ctx, blockID)
		if err != nil {
			return false, err
		}
		changed := false
		for j := range f.Blocks {
			b := &f.Blocks[j]
			if b.ID != blockID || slices.Contains(b.Nodes, nodeID) {
				continue
			}
			b.Nodes = append(b.Nodes, nodeID)
			changed = true
		}
		if !changed {
			return false, nil
		}
		if _, err = s.store.UpdateFile(ctx, f); !errors.Is(err, meta.ErrConflict) {
			return err == nil, err
		}
	}
	return false, err
}
