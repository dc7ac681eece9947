package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const nameNodeServiceName = "griddfs.NameNodeService"

type DataNodeInfo struct {
	ID        string
	Address   string
	Capacity  int64
	FreeSpace int64
}

// BlockInfo describes one block of a file and the DataNodes holding it, in preference order.
type BlockInfo struct {
	BlockID   string
	Size      int64
	DataNodes []DataNodeInfo
}

type CreateFileRequest struct {
	Filename string
	Filesize int64
	UserID   string
}

type CreateFileResponse struct {
	BlockSize int64
	Blocks    []BlockInfo
}

type GetFileInfoRequest struct {
	Filename string
	UserID   string
}

type GetFileInfoResponse struct {
	OwnerID   string
	Size      int64
	BlockSize int64
	Blocks    []BlockInfo
}

type FileMetadata struct {
	Filename    string
	OwnerID     string
	Size        int64
	CreatedTime int64
	IsDir       bool
}

type ListFilesRequest struct {
	Directory string
	UserID    string
}

type ListFilesResponse struct {
	Files []FileMetadata
}

type DeleteFileRequest struct {
	Filename string
	UserID   string
}

// Result is the {success, message} shape shared by the namespace and auth calls.
type Result struct {
	Success bool
	Message string
}

type DirectoryRequest struct {
	Directory string
	UserID    string
}

type Credentials struct {
	Username string
	Password string
}

type UserResponse struct {
	Success bool
	UserID  string
	Message string
}

type RegisterDataNodeRequest struct {
	DataNode DataNodeInfo
}

type HeartbeatRequest struct {
	DataNodeID string
	FreeSpace  int64
}

type BlockReportRequest struct {
	DataNodeID string
	BlockIDs   []string
}

// NameNodeServiceClient is the client API for the metadata authority.
type NameNodeServiceClient interface {
	LoginUser(ctx context.Context, in *Credentials, opts ...grpc.CallOption) (*UserResponse, error)
	RegisterUser(ctx context.Context, in *Credentials, opts ...grpc.CallOption) (*UserResponse, error)
	CreateFile(ctx context.Context, in *CreateFileRequest, opts ...grpc.CallOption) (*CreateFileResponse, error)
	GetFileInfo(ctx context.Context, in *GetFileInfoRequest, opts ...grpc.CallOption) (*GetFileInfoResponse, error)
	ListFiles(ctx context.Context, in *ListFilesRequest, opts ...grpc.CallOption) (*ListFilesResponse, error)
	DeleteFile(ctx context.Context, in *DeleteFileRequest, opts ...grpc.CallOption) (*Result, error)
	CreateDirectory(ctx context.Context, in *DirectoryRequest, opts ...grpc.CallOption) (*Result, error)
	RemoveDirectory(ctx context.Context, in *DirectoryRequest, opts ...grpc.CallOption) (*Result, error)
	RegisterDataNode(ctx context.Context, in *RegisterDataNodeRequest, opts ...grpc.CallOption) (*Result, error)
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*Result, error)
	BlockReport(ctx context.Context, in *BlockReportRequest, opts ...grpc.CallOption) (*Result, error)
}

type nameNodeServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewNameNodeServiceClient(cc grpc.ClientConnInterface) NameNodeServiceClient {
	return &nameNodeServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+nameNodeServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nameNodeServiceClient) LoginUser(ctx context.Context, in *Credentials, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "LoginUser", in, opts)
}

func (c *nameNodeServiceClient) RegisterUser(ctx context.Context, in *Credentials, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "RegisterUser", in, opts)
}

func (c *nameNodeServiceClient) CreateFile(ctx context.Context, in *CreateFileRequest, opts ...grpc.CallOption) (*CreateFileResponse, error) {
	return invoke[CreateFileResponse](ctx, c.cc, "CreateFile", in, opts)
}

func (c *nameNodeServiceClient) GetFileInfo(ctx context.Context, in *GetFileInfoRequest, opts ...grpc.CallOption) (*GetFileInfoResponse, error) {
	return invoke[GetFileInfoResponse](ctx, c.cc, "GetFileInfo", in, opts)
}

func (c *nameNodeServiceClient) ListFiles(ctx context.Context, in *ListFilesRequest, opts ...grpc.CallOption) (*ListFilesResponse, error) {
	return invoke[ListFilesResponse](ctx, c.cc, "ListFiles", in, opts)
}

func (c *nameNodeServiceClient) DeleteFile(ctx context.Context, in *DeleteFileRequest, opts ...grpc.CallOption) (*Result, error) {
	return invoke[Result](ctx, c.cc, "DeleteFile", in, opts)
}

func (c *nameNodeServiceClient) CreateDirectory(ctx context.Context, in *DirectoryRequest, opts ...grpc.CallOption) (*Result, error) {
	return invoke[Result](ctx, c.cc, "CreateDirectory", in, opts)
}

func (c *nameNodeServiceClient) RemoveDirectory(ctx context.Context, in *DirectoryRequest, opts ...grpc.CallOption) (*Result, error) {
	return invoke[Result](ctx, c.cc, "RemoveDirectory", in, opts)
}

func (c *nameNodeServiceClient) RegisterDataNode(ctx context.Context, in *RegisterDataNodeRequest, opts ...grpc.CallOption) (*Result, error) {
	return invoke[Result](ctx, c.cc, "RegisterDataNode", in, opts)
}

func (c *nameNodeServiceClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*Result, error) {
	return invoke[Result](ctx, c.cc, "Heartbeat", in, opts)
}

func (c *nameNodeServiceClient) BlockReport(ctx context.Context, in *BlockReportRequest, opts ...grpc.CallOption) (*Result, error) {
	return invoke[Result](ctx, c.cc, "BlockReport", in, opts)
}

// NameNodeServiceServer is the server API for the metadata authority.
type NameNodeServiceServer interface {
	LoginUser(context.Context, *Credentials) (*UserResponse, error)
	RegisterUser(context.Context, *Credentials) (*UserResponse, error)
	CreateFile(context.Context, *CreateFileRequest) (*CreateFileResponse, error)
	GetFileInfo(context.Context, *GetFileInfoRequest) (*GetFileInfoResponse, error)
	ListFiles(context.Context, *ListFilesRequest) (*ListFilesResponse, error)
	DeleteFile(context.Context, *DeleteFileRequest) (*Result, error)
	CreateDirectory(context.Context, *DirectoryRequest) (*Result, error)
	RemoveDirectory(context.Context, *DirectoryRequest) (*Result, error)
	RegisterDataNode(context.Context, *RegisterDataNodeRequest) (*Result, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*Result, error)
	BlockReport(context.Context, *BlockReportRequest) (*Result, error)
}

type UnimplementedNameNodeServiceServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedNameNodeServiceServer) LoginUser(context.Context, *Credentials) (*UserResponse, error) {
	return nil, unimplemented("LoginUser")
}

func (UnimplementedNameNodeServiceServer) RegisterUser(context.Context, *Credentials) (*UserResponse, error) {
	return nil, unimplemented("RegisterUser")
}

func (UnimplementedNameNodeServiceServer) CreateFile(context.Context, *CreateFileRequest) (*CreateFileResponse, error) {
	return nil, unimplemented("CreateFile")
}

func (UnimplementedNameNodeServiceServer) GetFileInfo(context.Context, *GetFileInfoRequest) (*GetFileInfoResponse, error) {
	return nil, unimplemented("GetFileInfo")
}

func (UnimplementedNameNodeServiceServer) ListFiles(context.Context, *ListFilesRequest) (*ListFilesResponse, error) {
	return nil, unimplemented("ListFiles")
}

func (UnimplementedNameNodeServiceServer) DeleteFile(context.Context, *DeleteFileRequest) (*Result, error) {
	return nil, unimplemented("DeleteFile")
}

func (UnimplementedNameNodeServiceServer) CreateDirectory(context.Context, *DirectoryRequest) (*Result, error) {
	return nil, unimplemented("CreateDirectory")
}

func (UnimplementedNameNodeServiceServer) RemoveDirectory(context.Context, *DirectoryRequest) (*Result, error) {
	return nil, unimplemented("RemoveDirectory")
}

func (UnimplementedNameNodeServiceServer) RegisterDataNode(context.Context, *RegisterDataNodeRequest) (*Result, error) {
	return nil, unimplemented("RegisterDataNode")
}

func (UnimplementedNameNodeServiceServer) Heartbeat(context.Context, *HeartbeatRequest) (*Result, error) {
	return nil, unimplemented("Heartbeat")
}

func (UnimplementedNameNodeServiceServer) BlockReport(context.Context, *BlockReportRequest) (*Result, error) {
	return nil, unimplemented("BlockReport")
}

func RegisterNameNodeServiceServer(s grpc.ServiceRegistrar, srv NameNodeServiceServer) {
	s.RegisterService(&NameNodeServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(NameNodeServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(NameNodeServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + nameNodeServiceName + "/" + method,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// NameNodeServiceDesc is the grpc.ServiceDesc for the metadata authority.
var NameNodeServiceDesc = grpc.ServiceDesc{
	ServiceName: nameNodeServiceName,
	HandlerType: (*NameNodeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("LoginUser", NameNodeServiceServer.LoginUser),
		unary("RegisterUser", NameNodeServiceServer.RegisterUser),
		unary("CreateFile", NameNodeServiceServer.CreateFile),
		unary("GetFileInfo", NameNodeServiceServer.GetFileInfo),
		unary("ListFiles", NameNodeServiceServer.ListFiles),
		unary("DeleteFile", NameNodeServiceServer.DeleteFile),
		unary("CreateDirectory", NameNodeServiceServer.CreateDirectory),
		unary("RemoveDirectory", NameNodeServiceServer.RemoveDirectory),
		unary("RegisterDataNode", NameNodeServiceServer.RegisterDataNode),
		unary("Heartbeat", NameNodeServiceServer.Heartbeat),
		unary("BlockReport", NameNodeServiceServer.BlockReport),
	},
	Metadata: "griddfs.proto",
}
