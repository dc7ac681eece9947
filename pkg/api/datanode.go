package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const dataNodeServiceName = "griddfs.DataNodeService"

// WriteBlockRequest is one message of a WriteBlock stream. Every message repeats the block id.
type WriteBlockRequest struct {
	BlockID string
	Data    []byte
}

type WriteBlockResponse struct {
	Success bool
	Message string
}

type ReadBlockRequest struct {
	BlockID string
}

type ReadBlockResponse struct {
	Data []byte
}

type DeleteBlockRequest struct {
	BlockID string
}

type DeleteBlockResponse struct {
	Success bool
}

// DataNodeServiceClient is the client API for the DataNode service.
type DataNodeServiceClient interface {
	WriteBlock(ctx context.Context, opts ...grpc.CallOption) (WriteBlockClientStream, error)
	ReadBlock(ctx context.Context, in *ReadBlockRequest, opts ...grpc.CallOption) (ReadBlockClientStream, error)
	DeleteBlock(ctx context.Context, in *DeleteBlockRequest, opts ...grpc.CallOption) (*DeleteBlockResponse, error)
}

type WriteBlockClientStream interface {
	Send(*WriteBlockRequest) error
	CloseAndRecv() (*WriteBlockResponse, error)
	grpc.ClientStream
}

type ReadBlockClientStream interface {
	Recv() (*ReadBlockResponse, error)
	grpc.ClientStream
}

type dataNodeServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDataNodeServiceClient(cc grpc.ClientConnInterface) DataNodeServiceClient {
	return &dataNodeServiceClient{cc: cc}
}

func (c *dataNodeServiceClient) WriteBlock(ctx context.Context, opts ...grpc.CallOption) (WriteBlockClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &DataNodeServiceDesc.Streams[0], "/"+dataNodeServiceName+"/WriteBlock", opts...)
	if err != nil {
		return nil, err
	}
	return &writeBlockClientStream{stream}, nil
}

type writeBlockClientStream struct {
	grpc.ClientStream
}

func (x *writeBlockClientStream) Send(m *WriteBlockRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *writeBlockClientStream) CloseAndRecv() (*WriteBlockResponse, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(WriteBlockResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *dataNodeServiceClient) ReadBlock(ctx context.Context, in *ReadBlockRequest, opts ...grpc.CallOption) (ReadBlockClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &DataNodeServiceDesc.Streams[1], "/"+dataNodeServiceName+"/ReadBlock", opts...)
	if err != nil {
		return nil, err
	}
	x := &readBlockClientStream{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type readBlockClientStream struct {
	grpc.ClientStream
}

func (x *readBlockClientStream) Recv() (*ReadBlockResponse, error) {
	m := new(ReadBlockResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *dataNodeServiceClient) DeleteBlock(ctx context.Context, in *DeleteBlockRequest, opts ...grpc.CallOption) (*DeleteBlockResponse, error) {
	out := new(DeleteBlockResponse)
	if err := c.cc.Invoke(ctx, "/"+dataNodeServiceName+"/DeleteBlock", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// DataNodeServiceServer is the server API for the DataNode service.
type DataNodeServiceServer interface {
	WriteBlock(WriteBlockServerStream) error
	ReadBlock(*ReadBlockRequest, ReadBlockServerStream) error
	DeleteBlock(context.Context, *DeleteBlockRequest) (*DeleteBlockResponse, error)
}

type WriteBlockServerStream interface {
	Recv() (*WriteBlockRequest, error)
	SendAndClose(*WriteBlockResponse) error
	grpc.ServerStream
}

type ReadBlockServerStream interface {
	Send(*ReadBlockResponse) error
	grpc.ServerStream
}

// UnimplementedDataNodeServiceServer can be embedded to get Unimplemented errors for
// methods a server does not override.
type UnimplementedDataNodeServiceServer struct{}

func (UnimplementedDataNodeServiceServer) WriteBlock(WriteBlockServerStream) error {
	return status.Error(codes.Unimplemented, "method WriteBlock not implemented")
}

func (UnimplementedDataNodeServiceServer) ReadBlock(*ReadBlockRequest, ReadBlockServerStream) error {
	return status.Error(codes.Unimplemented, "method ReadBlock not implemented")
}

func (UnimplementedDataNodeServiceServer) DeleteBlock(context.Context, *DeleteBlockRequest) (*DeleteBlockResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeleteBlock not implemented")
}

func RegisterDataNodeServiceServer(s grpc.ServiceRegistrar, srv DataNodeServiceServer) {
	s.RegisterService(&DataNodeServiceDesc, srv)
}

type writeBlockServerStream struct {
	grpc.ServerStream
}

func (x *writeBlockServerStream) Recv() (*WriteBlockRequest, error) {
	m := new(WriteBlockRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (x *writeBlockServerStream) SendAndClose(m *WriteBlockResponse) error {
	return x.ServerStream.SendMsg(m)
}

type readBlockServerStream struct {
	grpc.ServerStream
}

func (x *readBlockServerStream) Send(m *ReadBlockResponse) error {
	return x.ServerStream.SendMsg(m)
}

func writeBlockHandler(srv any, stream grpc.ServerStream) error {
	return srv.(DataNodeServiceServer).WriteBlock(&writeBlockServerStream{stream})
}

func readBlockHandler(srv any, stream grpc.ServerStream) error {
	m := new(ReadBlockRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(DataNodeServiceServer).ReadBlock(m, &readBlockServerStream{stream})
}

func deleteBlockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DeleteBlockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DataNodeServiceServer).DeleteBlock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + dataNodeServiceName + "/DeleteBlock",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DataNodeServiceServer).DeleteBlock(ctx, req.(*DeleteBlockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// DataNodeServiceDesc is the grpc.ServiceDesc for the DataNode service.
var DataNodeServiceDesc = grpc.ServiceDesc{
	ServiceName: dataNodeServiceName,
	HandlerType: (*DataNodeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "DeleteBlock", Handler: deleteBlockHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WriteBlock", Handler: writeBlockHandler, ClientStreams: true},
		{StreamName: "ReadBlock", Handler: readBlockHandler, ServerStreams: true},
	},
	Metadata: "griddfs.proto",
}
