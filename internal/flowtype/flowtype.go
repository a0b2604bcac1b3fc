// Package flowtype holds the wire-level and in-memory data model shared by
// every actor: identities, batches, envelopes, partition specs, and the
// checkpoint artifact. Nothing here talks to a transport or a store; those
// live in internal/transport and internal/store.
package flowtype

import (
	"fmt"
	"strconv"
)

// NodeId names a logical node of the topology (an input, task, or sink).
type NodeId string

// ActorId identifies one channel of one logical node. It is stable for the
// life of the topology: a restarted actor keeps the same ActorId.
type ActorId struct {
	Node    NodeId
	Channel int
}

func (id ActorId) String() string {
	return fmt.Sprintf("%s-%d", id.Node, id.Channel)
}

// EdgeId identifies a single consumer-side input edge: the (parent node,
// parent channel) a consuming actor receives from.
type EdgeId struct {
	ParentNode    NodeId
	ParentChannel int
}

func (e EdgeId) String() string {
	return fmt.Sprintf("%s-%d", e.ParentNode, e.ParentChannel)
}

// Less gives a deterministic lexicographic order over edges, used by the
// scheduler to break ties between equally-backlogged parents.
func (e EdgeId) Less(other EdgeId) bool {
	if e.ParentNode != other.ParentNode {
		return e.ParentNode < other.ParentNode
	}
	return e.ParentChannel < other.ParentChannel
}

// Row is one opaque tabular row: a map of column name to value. The runtime
// never interprets row contents except when partitioning by a named key
// column (see ColumnMod below).
type Row map[string]any

// Batch is a tabular payload moved as one unit across an edge. The runtime
// treats it as opaque except for partitioning and concatenation, both of
// which only need the Rows slice.
type Batch struct {
	Rows []Row
}

// Concat concatenates a sequence of batches into one, in order. It is used
// by the scheduler to merge everything buffered for an edge into a single
// execution unit.
func Concat(batches []Batch) Batch {
	var out Batch
	for _, b := range batches {
		out.Rows = append(out.Rows, b.Rows...)
	}
	return out
}

// Payload is the two-variant sum type carried by an envelope: either a data
// Batch, or the "done" sentinel marking the end of a producer channel's
// output.
type Payload struct {
	Batch Batch
	Done  bool
}

// DataPayload wraps a Batch as a non-terminal payload.
func DataPayload(b Batch) Payload { return Payload{Batch: b} }

// DonePayload is the terminal sentinel payload.
func DonePayload() Payload { return Payload{Done: true} }

// Metadata is the per-envelope tag published alongside a payload: who
// produced it and at what sequence. It is always marshalled as a single
// value, never as separate positional fields (Open Question #1 in
// SPEC_FULL.md).
type Metadata struct {
	SrcNode    NodeId `json:"src_node"`
	SrcChannel int    `json:"src_channel"`
	Seq        uint64 `json:"seq"`
}

// Envelope is a Payload annotated with its producer and sequence. It exists
// only transiently: created on push, discarded once the consumer admits or
// rejects it.
type Envelope struct {
	Metadata
	Payload Payload
}

// PartitionSpec selects, for a given row, which downstream channel it is
// routed to. It is a closed two-variant type: exactly one of ColumnMod or
// Func is meaningful, mirroring the source's dynamically-typed partition_key
// attribute.
type PartitionSpec struct {
	// ColumnMod, if non-empty, names a column whose integer value mod the
	// channel count selects the target channel.
	ColumnMod string
	// Func, if non-nil, computes the sub-batch for a given channel directly.
	Func func(batch Batch, channel int) Batch
}

// IsFunc reports whether this spec uses a user function rather than a
// column-mod rule.
func (p PartitionSpec) IsFunc() bool { return p.Func != nil }

// Route partitions batch across numChannels according to this rule. The done
// sentinel path never calls Route: "done" is forwarded unchanged to every
// channel by the caller.
func (p PartitionSpec) Route(batch Batch, channel, numChannels int) Batch {
	if p.Func != nil {
		return p.Func(batch, channel)
	}
	if p.ColumnMod == "" {
		return batch
	}
	var out Batch
	for _, row := range batch.Rows {
		v, ok := row[p.ColumnMod]
		if !ok {
			continue
		}
		var k int
		switch n := v.(type) {
		case int:
			k = n
		case int64:
			k = int(n)
		case float64:
			k = int(n)
		case string:
			parsed, err := strconv.Atoi(n)
			if err != nil {
				continue
			}
			k = parsed
		default:
			continue
		}
		if ((k % numChannels) + numChannels) % numChannels == channel {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// StateTag is a per-actor snapshot of how many batches have been merged
// into an execution, for every (parent_node, parent_channel) edge it
// consumes from. It is immutable once logged: the scheduler always builds
// a fresh copy before advancing it.
type StateTag map[EdgeId]int

// Clone returns an independent copy, so callers can mutate the result
// without aliasing a logged snapshot.
func (s StateTag) Clone() StateTag {
	out := make(StateTag, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Equal compares two tags field-by-field.
func (s StateTag) Equal(other StateTag) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		if other[k] != v {
			return false
		}
	}
	return true
}

// Checkpoint is the opaque snapshot written every K executions: the fields
// listed under "Checkpoint" in spec.md §3, plus the caller-supplied,
// already-serialised function-object state.
type Checkpoint struct {
	StateTag            StateTag
	LatestInputReceived StateTag
	OutSeq              uint64
	OutputLog           map[uint64]Payload
	TargetOutputState   map[ActorId]uint64
	// InputPosition is only meaningful for input actors: the resumable
	// position in the external dataset.
	InputPosition string
	// FunctionState is the serialised user function object, opaque to the
	// runtime.
	FunctionState []byte
}
