package api

import (
	"bytes"
	"reflect"
	"testing"

	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestWriteBlockRequestWireBytes(t *testing.T) {
	b, err := Codec.Marshal(&WriteBlockRequest{BlockID: "b", Data: []byte{1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x0a, 0x01, 'b', 0x12, 0x02, 0x01, 0x02}
	if !bytes.Equal(b, want) {
		t.Fatalf("wire = % x, want % x", b, want)
	}
}

func TestChunkOverheadIsSmall(t *testing.T) {
	chunk := make([]byte, 64<<10)
	b, err := Codec.Marshal(&WriteBlockRequest{BlockID: "0f8e_blk_3", Data: chunk})
	if err != nil {
		t.Fatal(err)
	}
	if over := len(b) - len(chunk); over > 32 {
		t.Fatalf("64KiB chunk encodes with %d bytes of overhead", over)
	}
}

func TestNestedMessages(t *testing.T) {
	in := &GetFileInfoResponse{
		OwnerID:   "u1",
		Size:      2500,
		BlockSize: 1024,
		Blocks: []BlockInfo{
			{BlockID: "f_blk_0", Size: 1024, DataNodes: []DataNodeInfo{{ID: "dn1", Address: "a:1"}, {ID: "dn2", Address: "b:1"}}},
			{BlockID: "f_blk_1", Size: 1024, DataNodes: []DataNodeInfo{{ID: "dn2", Address: "b:1"}}},
			{BlockID: "f_blk_2", Size: 452},
		},
	}
	b, err := Codec.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out := new(GetFileInfoResponse)
	if err := Codec.Unmarshal(b, out); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestUnknownFieldsSkipped(t *testing.T) {
	b := protowire.AppendTag(nil, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "dn7")
	b = protowire.AppendTag(b, 10, protowire.BytesType)
	b = protowire.AppendString(b, "extra")
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 77)

	var hb HeartbeatRequest
	if err := Codec.Unmarshal(b, &hb); err != nil {
		t.Fatal(err)
	}
	if hb.DataNodeID != "dn7" || hb.FreeSpace != 77 {
		t.Fatalf("got %+v", hb)
	}
}

func TestRejectsBadInput(t *testing.T) {
	// field 1 of ReadBlockRequest is a string, not a varint
	wrongType := protowire.AppendVarint(protowire.AppendTag(nil, 1, protowire.VarintType), 1)
	truncated := []byte{0x0a, 0x05, 'a'}
	for name, b := range map[string][]byte{"wrong type": wrongType, "truncated": truncated} {
		if err := Codec.Unmarshal(b, new(ReadBlockRequest)); err == nil {
			t.Errorf("%s: no error", name)
		}
	}
	if _, err := Codec.Marshal(struct{}{}); err == nil {
		t.Error("marshal of a foreign type succeeded")
	}
}

func TestHealthMessagesUseProto(t *testing.T) {
	in := &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}
	b, err := Codec.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out := new(grpc_health_v1.HealthCheckResponse)
	if err := Codec.Unmarshal(b, out); err != nil {
		t.Fatal(err)
	}
	if out.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v", out.GetStatus())
	}
}
