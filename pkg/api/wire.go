package api

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// message is implemented by every GridDFS request and response.
type message interface {
	appendWire(b []byte) []byte
	// readField consumes the value of one field and returns its length, or 0 for a field
	// the message does not know.
	readField(num protowire.Number, typ protowire.Type, b []byte) (int, error)
}

// decode walks the fields of b. Unknown fields are skipped.
func decode(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := field(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

// Zero values are left out, as proto3 does.

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendMessage(b []byte, num protowire.Number, m message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.appendWire(nil))
}

func wantType(got, want protowire.Type) error {
	if got != want {
		return fmt.Errorf("wire type %d, want %d", got, want)
	}
	return nil
}

func consumed(n int) (int, error) {
	if n < 0 {
		return n, protowire.ParseError(n)
	}
	return n, nil
}

func readString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if err := wantType(typ, protowire.BytesType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeString(b)
	*dst = v
	return consumed(n)
}

func readStrings(typ protowire.Type, b []byte, dst *[]string) (int, error) {
	var s string
	n, err := readString(typ, b, &s)
	if err == nil {
		*dst = append(*dst, s)
	}
	return n, err
}

// readBytes copies the value; the receive buffer is not ours to keep.
func readBytes(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if err := wantType(typ, protowire.BytesType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeBytes(b)
	*dst = append([]byte(nil), v...)
	return consumed(n)
}

func readInt64(typ protowire.Type, b []byte, dst *int64) (int, error) {
	if err := wantType(typ, protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(b)
	*dst = int64(v)
	return consumed(n)
}

func readBool(typ protowire.Type, b []byte, dst *bool) (int, error) {
	if err := wantType(typ, protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(b)
	*dst = protowire.DecodeBool(v)
	return consumed(n)
}

func readMessage(typ protowire.Type, b []byte, m message) (int, error) {
	if err := wantType(typ, protowire.BytesType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return consumed(n)
	}
	return n, decode(v, m.readField)
}

// DataNode messages.

func (m *WriteBlockRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.BlockID)
	return appendBytes(b, 2, m.Data)
}

func (m *WriteBlockRequest) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.BlockID)
	case 2:
		return readBytes(typ, b, &m.Data)
	}
	return 0, nil
}

func (m *WriteBlockResponse) appendWire(b []byte) []byte {
	b = appendBool(b, 1, m.Success)
	return appendString(b, 2, m.Message)
}

func (m *WriteBlockResponse) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readBool(typ, b, &m.Success)
	case 2:
		return readString(typ, b, &m.Message)
	}
	return 0, nil
}

func (m *ReadBlockRequest) appendWire(b []byte) []byte { return appendString(b, 1, m.BlockID) }

func (m *ReadBlockRequest) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == 1 {
		return readString(typ, b, &m.BlockID)
	}
	return 0, nil
}

func (m *ReadBlockResponse) appendWire(b []byte) []byte { return appendBytes(b, 1, m.Data) }

func (m *ReadBlockResponse) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == 1 {
		return readBytes(typ, b, &m.Data)
	}
	return 0, nil
}

func (m *DeleteBlockRequest) appendWire(b []byte) []byte { return appendString(b, 1, m.BlockID) }

func (m *DeleteBlockRequest) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == 1 {
		return readString(typ, b, &m.BlockID)
	}
	return 0, nil
}

func (m *DeleteBlockResponse) appendWire(b []byte) []byte { return appendBool(b, 1, m.Success) }

func (m *DeleteBlockResponse) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == 1 {
		return readBool(typ, b, &m.Success)
	}
	return 0, nil
}

// NameNode messages.

func (m *DataNodeInfo) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.Address)
	b = appendInt64(b, 3, m.Capacity)
	return appendInt64(b, 4, m.FreeSpace)
}

func (m *DataNodeInfo) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.ID)
	case 2:
		return readString(typ, b, &m.Address)
	case 3:
		return readInt64(typ, b, &m.Capacity)
	case 4:
		return readInt64(typ, b, &m.FreeSpace)
	}
	return 0, nil
}

func (m *BlockInfo) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.BlockID)
	b = appendInt64(b, 2, m.Size)
	for i := range m.DataNodes {
		b = appendMessage(b, 3, &m.DataNodes[i])
	}
	return b
}

func (m *BlockInfo) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.BlockID)
	case 2:
		return readInt64(typ, b, &m.Size)
	case 3:
		var dn DataNodeInfo
		n, err := readMessage(typ, b, &dn)
		if err == nil {
			m.DataNodes = append(m.DataNodes, dn)
		}
		return n, err
	}
	return 0, nil
}

func appendBlocks(b []byte, num protowire.Number, blocks []BlockInfo) []byte {
	for i := range blocks {
		b = appendMessage(b, num, &blocks[i])
	}
	return b
}

func readBlock(typ protowire.Type, b []byte, dst *[]BlockInfo) (int, error) {
	var bi BlockInfo
	n, err := readMessage(typ, b, &bi)
	if err == nil {
		*dst = append(*dst, bi)
	}
	return n, err
}

func (m *CreateFileRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Filename)
	b = appendInt64(b, 2, m.Filesize)
	return appendString(b, 3, m.UserID)
}

func (m *CreateFileRequest) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.Filename)
	case 2:
		return readInt64(typ, b, &m.Filesize)
	case 3:
		return readString(typ, b, &m.UserID)
	}
	return 0, nil
}

func (m *CreateFileResponse) appendWire(b []byte) []byte {
	b = appendInt64(b, 1, m.BlockSize)
	return appendBlocks(b, 2, m.Blocks)
}

func (m *CreateFileResponse) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readInt64(typ, b, &m.BlockSize)
	case 2:
		return readBlock(typ, b, &m.Blocks)
	}
	return 0, nil
}

func (m *GetFileInfoRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Filename)
	return appendString(b, 2, m.UserID)
}

func (m *GetFileInfoRequest) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.Filename)
	case 2:
		return readString(typ, b, &m.UserID)
	}
	return 0, nil
}

func (m *GetFileInfoResponse) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.OwnerID)
	b = appendInt64(b, 2, m.Size)
	b = appendInt64(b, 3, m.BlockSize)
	return appendBlocks(b, 4, m.Blocks)
}

func (m *GetFileInfoResponse) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.OwnerID)
	case 2:
		return readInt64(typ, b, &m.Size)
	case 3:
		return readInt64(typ, b, &m.BlockSize)
	case 4:
		return readBlock(typ, b, &m.Blocks)
	}
	return 0, nil
}

func (m *FileMetadata) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Filename)
	b = appendString(b, 2, m.OwnerID)
	b = appendInt64(b, 3, m.Size)
	b = appendInt64(b, 4, m.CreatedTime)
	return appendBool(b, 5, m.IsDir)
}

func (m *FileMetadata) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.Filename)
	case 2:
		return readString(typ, b, &m.OwnerID)
	case 3:
		return readInt64(typ, b, &m.Size)
	case 4:
		return readInt64(typ, b, &m.CreatedTime)
	case 5:
		return readBool(typ, b, &m.IsDir)
	}
	return 0, nil
}

func (m *ListFilesRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Directory)
	return appendString(b, 2, m.UserID)
}

func (m *ListFilesRequest) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.Directory)
	case 2:
		return readString(typ, b, &m.UserID)
	}
	return 0, nil
}

func (m *ListFilesResponse) appendWire(b []byte) []byte {
	for i := range m.Files {
		b = appendMessage(b, 1, &m.Files[i])
	}
	return b
}

func (m *ListFilesResponse) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num != 1 {
		return 0, nil
	}
	var f FileMetadata
	n, err := readMessage(typ, b, &f)
	if err == nil {
		m.Files = append(m.Files, f)
	}
	return n, err
}

func (m *DeleteFileRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Filename)
	return appendString(b, 2, m.UserID)
}

func (m *DeleteFileRequest) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.Filename)
	case 2:
		return readString(typ, b, &m.UserID)
	}
	return 0, nil
}

func (m *Result) appendWire(b []byte) []byte {
	b = appendBool(b, 1, m.Success)
	return appendString(b, 2, m.Message)
}

func (m *Result) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readBool(typ, b, &m.Success)
	case 2:
		return readString(typ, b, &m.Message)
	}
	return 0, nil
}

func (m *DirectoryRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Directory)
	return appendString(b, 2, m.UserID)
}

func (m *DirectoryRequest) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.Directory)
	case 2:
		return readString(typ, b, &m.UserID)
	}
	return 0, nil
}

func (m *Credentials) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Username)
	return appendString(b, 2, m.Password)
}

func (m *Credentials) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.Username)
	case 2:
		return readString(typ, b, &m.Password)
	}
	return 0, nil
}

func (m *UserResponse) appendWire(b []byte) []byte {
	b = appendBool(b, 1, m.Success)
	b = appendString(b, 2, m.UserID)
	return appendString(b, 3, m.Message)
}

func (m *UserResponse) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readBool(typ, b, &m.Success)
	case 2:
		return readString(typ, b, &m.UserID)
	case 3:
		return readString(typ, b, &m.Message)
	}
	return 0, nil
}

func (m *RegisterDataNodeRequest) appendWire(b []byte) []byte {
	return appendMessage(b, 1, &m.DataNode)
}

func (m *RegisterDataNodeRequest) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	if num == 1 {
		return readMessage(typ, b, &m.DataNode)
	}
	return 0, nil
}

func (m *HeartbeatRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.DataNodeID)
	return appendInt64(b, 2, m.FreeSpace)
}

func (m *HeartbeatRequest) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.DataNodeID)
	case 2:
		return readInt64(typ, b, &m.FreeSpace)
	}
	return 0, nil
}

func (m *BlockReportRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.DataNodeID)
	for _, id := range m.BlockIDs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	return b
}

func (m *BlockReportRequest) readField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return readString(typ, b, &m.DataNodeID)
	case 2:
		return readStrings(typ, b, &m.BlockIDs)
	}
	return 0, nil
}
