package grpcrpc

import (
	"github.com/gogo/protobuf/proto"
	"google.golang.org/grpc/encoding"
)

const codecName = "proto"

// gogoCodec overrides grpc-go's built-in "proto" codec with
// github.com/gogo/protobuf/proto's reflection-based Marshal/Unmarshal, so
// the hand-maintained message structs in messages.go (which only
// implement the legacy Reset/String/ProtoMessage trio, not the newer
// protoreflect-based API) can ride the wire without code generation.
type gogoCodec struct{}

func (gogoCodec) Marshal(v any) ([]byte, error) {
	return proto.Marshal(v.(proto.Message))
}

func (gogoCodec) Unmarshal(data []byte, v any) error {
	return proto.Unmarshal(data, v.(proto.Message))
}

func (gogoCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(gogoCodec{})
}
