// Package api holds the wire contract shared by the NameNode, the DataNodes and their clients:
// gRPC service descriptors, request/response messages and the codec that encodes them.
// Messages use the protobuf wire format with the field numbers listed in griddfs.proto.
package api

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
)

// CodecName is the gRPC content-subtype GridDFS calls carry. It is the stock protobuf one, so
// any protobuf peer built from griddfs.proto can talk to these services.
const CodecName = "proto"

// Codec encodes GridDFS messages with their hand-written protobuf marshalers and generated
// protobuf messages (the health service) with proto.
var Codec codec

type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case message:
		return m.appendWire(nil), nil
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("api: cannot marshal %T", v)
}

func (codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case message:
		return decode(data, m.readField)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("api: cannot unmarshal into %T", v)
}

func (codec) Name() string { return CodecName }

// DialOptions returns the options every GridDFS client connection needs: plaintext transport
// (connections are unauthenticated) and the GridDFS codec.
func DialOptions(extra ...grpc.DialOption) []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec)),
	}
	return append(opts, extra...)
}

// ServerOptions returns the options a GridDFS gRPC server is created with.
func ServerOptions(extra ...grpc.ServerOption) []grpc.ServerOption {
	return append([]grpc.ServerOption{grpc.ForceServerCodec(Codec)}, extra...)
}
