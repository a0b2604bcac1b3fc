// Package transport defines Bus, the keyed pub/sub abstraction spec.md
// §4.1 and §6 assume as an external collaborator. The core never assumes
// atomic delivery of a (payload, metadata) pair; internal/actor's
// admission loop tolerates either stream arriving out of lockstep with the
// other and resynchronises by matching on arrival order.
package transport

import (
	"context"

	"github.com/estuary/flowcore/internal/flowtype"
)

// Bus is the narrow capability interface the runtime core depends on. It
// has no notion of actors, edges, or recovery — just four topic families,
// exactly as enumerated in spec.md §6.
type Bus interface {
	// PublishPayload publishes on mailbox-<to.Node>-<to.Channel>.
	PublishPayload(ctx context.Context, to flowtype.ActorId, payload flowtype.Payload) error
	// PublishMetadata publishes on mailbox-id-<to.Node>-<to.Channel>.
	PublishMetadata(ctx context.Context, to flowtype.ActorId, meta flowtype.Metadata) error
	// SubscribePayload returns a channel of payloads delivered to self on
	// mailbox-<self.Node>-<self.Channel>. Calling it twice for the same
	// actor is implementation-defined; actors subscribe exactly once.
	SubscribePayload(ctx context.Context, self flowtype.ActorId) (<-chan flowtype.Payload, error)
	// SubscribeMetadata mirrors SubscribePayload for mailbox-id.
	SubscribeMetadata(ctx context.Context, self flowtype.ActorId) (<-chan flowtype.Metadata, error)
	// PublishNodeDone publishes channel on node-done-<node>.
	PublishNodeDone(ctx context.Context, node flowtype.NodeId, channel int) error
	// SubscribeNodeDone returns a channel of channel ids announced done
	// for node.
	SubscribeNodeDone(ctx context.Context, node flowtype.NodeId) (<-chan int, error)
	// PublishInputDone publishes "done" on input-done-<node>.
	PublishInputDone(ctx context.Context, node flowtype.NodeId) error
	// SubscribeInputDone returns a channel signalled once per completion
	// announcement on input-done-<node>.
	SubscribeInputDone(ctx context.Context, node flowtype.NodeId) (<-chan struct{}, error)
}
