package grpcrpc

import "github.com/gogo/protobuf/proto"

// These message types are hand-maintained rather than generated from a
// .proto file: plain structs with protobuf struct tags, satisfying
// proto.Message via Reset/String/ProtoMessage so gogo's reflection-based
// Marshal/Unmarshal can drive the wire format without a generated
// *.pb.go. Field numbers are stable; don't renumber existing fields.

type AppendToTargetsRequest struct {
	TargetNode        string            `protobuf:"bytes,1,opt,name=target_node,proto3" json:"target_node,omitempty"`
	ChannelToAddress  map[int32]string  `protobuf:"bytes,2,rep,name=channel_to_address,proto3" json:"channel_to_address,omitempty" protobuf_key:"varint,1,opt,name=key" protobuf_val:"bytes,2,opt,name=value"`
	PartitionColumn   string            `protobuf:"bytes,3,opt,name=partition_column,proto3" json:"partition_column,omitempty"`
}

func (m *AppendToTargetsRequest) Reset()         { *m = AppendToTargetsRequest{} }
func (m *AppendToTargetsRequest) String() string { return proto.CompactTextString(m) }
func (m *AppendToTargetsRequest) ProtoMessage()  {}

type Ack struct {
	Ok    bool   `protobuf:"varint,1,opt,name=ok,proto3" json:"ok,omitempty"`
	Error string `protobuf:"bytes,2,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *Ack) Reset()         { *m = Ack{} }
func (m *Ack) String() string { return proto.CompactTextString(m) }
func (m *Ack) ProtoMessage()  {}

type UpdateTargetIPRequest struct {
	TargetNode    string `protobuf:"bytes,1,opt,name=target_node,proto3" json:"target_node,omitempty"`
	TargetChannel int32  `protobuf:"varint,2,opt,name=target_channel,proto3" json:"target_channel,omitempty"`
	NewAddress    string `protobuf:"bytes,3,opt,name=new_address,proto3" json:"new_address,omitempty"`
}

func (m *UpdateTargetIPRequest) Reset()         { *m = UpdateTargetIPRequest{} }
func (m *UpdateTargetIPRequest) String() string { return proto.CompactTextString(m) }
func (m *UpdateTargetIPRequest) ProtoMessage()  {}

type UpdateTargetIPAndHelpRecoverRequest struct {
	TargetNode        string `protobuf:"bytes,1,opt,name=target_node,proto3" json:"target_node,omitempty"`
	TargetChannel     int32  `protobuf:"varint,2,opt,name=target_channel,proto3" json:"target_channel,omitempty"`
	ConsumerStateTag  uint64 `protobuf:"varint,3,opt,name=consumer_state_tag,proto3" json:"consumer_state_tag,omitempty"`
	NewAddress        string `protobuf:"bytes,4,opt,name=new_address,proto3" json:"new_address,omitempty"`
}

func (m *UpdateTargetIPAndHelpRecoverRequest) Reset()         { *m = UpdateTargetIPAndHelpRecoverRequest{} }
func (m *UpdateTargetIPAndHelpRecoverRequest) String() string { return proto.CompactTextString(m) }
func (m *UpdateTargetIPAndHelpRecoverRequest) ProtoMessage()  {}

type HelpDownstreamRecoverRequest struct {
	TargetNode       string `protobuf:"bytes,1,opt,name=target_node,proto3" json:"target_node,omitempty"`
	TargetChannel    int32  `protobuf:"varint,2,opt,name=target_channel,proto3" json:"target_channel,omitempty"`
	ConsumerStateTag uint64 `protobuf:"varint,3,opt,name=consumer_state_tag,proto3" json:"consumer_state_tag,omitempty"`
}

func (m *HelpDownstreamRecoverRequest) Reset()         { *m = HelpDownstreamRecoverRequest{} }
func (m *HelpDownstreamRecoverRequest) String() string { return proto.CompactTextString(m) }
func (m *HelpDownstreamRecoverRequest) ProtoMessage()  {}

type TruncateLoggedOutputsRequest struct {
	TargetNode    string `protobuf:"bytes,1,opt,name=target_node,proto3" json:"target_node,omitempty"`
	TargetChannel int32  `protobuf:"varint,2,opt,name=target_channel,proto3" json:"target_channel,omitempty"`
	NewCursor     uint64 `protobuf:"varint,3,opt,name=new_cursor,proto3" json:"new_cursor,omitempty"`
}

func (m *TruncateLoggedOutputsRequest) Reset()         { *m = TruncateLoggedOutputsRequest{} }
func (m *TruncateLoggedOutputsRequest) String() string { return proto.CompactTextString(m) }
func (m *TruncateLoggedOutputsRequest) ProtoMessage()  {}

type ExecuteRequest struct{}

func (m *ExecuteRequest) Reset()         { *m = ExecuteRequest{} }
func (m *ExecuteRequest) String() string { return proto.CompactTextString(m) }
func (m *ExecuteRequest) ProtoMessage()  {}
