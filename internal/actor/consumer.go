package actor

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/estuary/flowcore/internal/flowerr"
	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/rpc"
	"github.com/estuary/flowcore/internal/scheduler"
	"github.com/estuary/flowcore/internal/store"
	"github.com/estuary/flowcore/internal/transport"
)

// Consumer holds everything a non-blocking task or blocking sink actor
// needs to ingest from parents, schedule executions, and recover via
// ask_upstream_for_help. It is the consumer-side counterpart of Producer.
type Consumer struct {
	id     flowtype.ActorId
	bus    transport.Bus
	dialer rpc.PeerDialer

	mu      sync.Mutex
	parents map[flowtype.NodeId]map[int]string // node -> channel -> address

	buffered            *bufferedInputs
	latestInputReceived flowtype.StateTag

	sched       *scheduler.Scheduler
	stateTagLog store.StateTagLog

	payloadCh  <-chan flowtype.Payload
	metadataCh <-chan flowtype.Metadata

	mailboxQueue  []flowtype.Payload
	metadataQueue []flowtype.Metadata
}

// NewConsumer constructs a Consumer for id, subscribed to its own mailbox
// topics. parents is a copy of the node -> channel -> address map this
// actor was configured (or recovered) with. currentTag is the state_tag
// to resume from (zero-valued for a fresh actor).
func NewConsumer(
	ctx context.Context,
	id flowtype.ActorId,
	bus transport.Bus,
	dialer rpc.PeerDialer,
	stateTagLog store.StateTagLog,
	parents map[flowtype.NodeId]map[int]string,
	currentTag flowtype.StateTag,
	latestInputReceived flowtype.StateTag,
) (*Consumer, error) {
	payloadCh, err := bus.SubscribePayload(ctx, id)
	if err != nil {
		return nil, err
	}
	metadataCh, err := bus.SubscribeMetadata(ctx, id)
	if err != nil {
		return nil, err
	}

	c := &Consumer{
		id:                  id,
		bus:                 bus,
		dialer:              dialer,
		parents:             parents,
		buffered:            newBufferedInputs(),
		latestInputReceived: latestInputReceived.Clone(),
		stateTagLog:         stateTagLog,
		payloadCh:           payloadCh,
		metadataCh:          metadataCh,
	}
	if c.latestInputReceived == nil {
		c.latestInputReceived = flowtype.StateTag{}
	}

	c.sched = scheduler.New(currentTag, func(tag flowtype.StateTag) {
		if err := c.stateTagLog.Append(context.Background(), id, tag); err != nil {
			log.WithError(err).WithField("actor", id).Error("failed to append state tag log entry")
		}
	})

	for node, channels := range parents {
		for channel := range channels {
			c.buffered.Track(flowtype.EdgeId{ParentNode: node, ParentChannel: channel})
		}
	}
	return c, nil
}

// LoadExpectedPath installs the recovered StateTagLog contents as the
// scheduler's expected_path.
func (c *Consumer) LoadExpectedPath(path []flowtype.StateTag) {
	c.sched.LoadExpectedPath(path)
}

// AskUpstreamForHelp calls help_downstream_recover on every parent
// channel with this actor's loaded state_tag cursor for that edge,
// retrying indefinitely (every 200ms) on a RecoveryPeerError since
// spec.md §4.7/§7 treat a dead parent during recovery as something the
// controller must resolve, not something this actor can route around.
func (c *Consumer) AskUpstreamForHelp(ctx context.Context) error {
	tag := c.sched.StateTag()

	c.mu.Lock()
	parents := make(map[flowtype.NodeId]map[int]string, len(c.parents))
	for node, channels := range c.parents {
		cp := make(map[int]string, len(channels))
		for ch, addr := range channels {
			cp[ch] = addr
		}
		parents[node] = cp
	}
	c.mu.Unlock()

	for node, channels := range parents {
		for channel, address := range channels {
			edge := flowtype.EdgeId{ParentNode: node, ParentChannel: channel}
			cursor := uint64(tag[edge])

			for {
				peer, err := c.dialer.Peer(address)
				if err == nil {
					err = peer.HelpDownstreamRecover(ctx, c.id, cursor)
				}
				if err == nil {
					break
				}

				wrapped := &flowerr.RecoveryPeerError{Parent: address, Cause: err}
				log.WithError(wrapped).Warn("waiting for recovery peer")

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(200 * time.Millisecond):
				}
			}
		}
	}
	return nil
}

// poll drains whatever is currently available on the payload and metadata
// channels into local FIFOs, then pairs them off and runs them through
// Admit, exactly mirroring the source's get_batches: payload and metadata
// are independent streams and are matched purely by arrival order, which
// is how the admission filter tolerates non-atomic publish (spec.md
// §4.1). It returns the number of envelopes admitted into BufferedInputs
// or consumed as a "done" sentinel.
func (c *Consumer) poll() int {
drainPayload:
	for {
		select {
		case p := <-c.payloadCh:
			c.mailboxQueue = append(c.mailboxQueue, p)
		default:
			break drainPayload
		}
	}
drainMetadata:
	for {
		select {
		case m := <-c.metadataCh:
			c.metadataQueue = append(c.metadataQueue, m)
		default:
			break drainMetadata
		}
	}

	admitted := 0
	for len(c.mailboxQueue) > 0 && len(c.metadataQueue) > 0 {
		payload := c.mailboxQueue[0]
		c.mailboxQueue = c.mailboxQueue[1:]
		meta := c.metadataQueue[0]
		c.metadataQueue = c.metadataQueue[1:]

		if c.admit(meta, payload) {
			admitted++
		}
	}
	return admitted
}

// admit runs the ordered filter of spec.md §4.3.
func (c *Consumer) admit(meta flowtype.Metadata, payload flowtype.Payload) bool {
	edge := flowtype.EdgeId{ParentNode: meta.SrcNode, ParentChannel: meta.SrcChannel}

	current := c.sched.StateTag()
	if int(meta.Seq) <= current[edge] {
		return false // rule 1: DuplicateOrStaleArrival, I4
	}
	if int(meta.Seq) > c.latestInputReceived[edge]+1 {
		return false // rule 2: FutureArrival, relies on producer resend
	}
	c.latestInputReceived[edge] = int(meta.Seq)

	if payload.Done {
		c.removeParentChannel(edge)
		return true
	}

	c.buffered.Append(edge, payload.Batch)
	return true
}

func (c *Consumer) removeParentChannel(edge flowtype.EdgeId) {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels, ok := c.parents[edge.ParentNode]
	if !ok {
		return
	}
	delete(channels, edge.ParentChannel)
	// Batches already buffered from this edge still have to be executed;
	// the edge is only untracked once its queue is empty.
	if c.buffered.Len(edge) == 0 {
		c.buffered.Untrack(edge)
	}
	if len(channels) == 0 {
		delete(c.parents, edge.ParentNode)
	}
}

// Next asks the scheduler for the next execution, after draining any
// pending arrivals.
func (c *Consumer) Next() (scheduler.Decision, error) {
	c.poll()
	return c.sched.Next(c.buffered)
}

// Idle reports whether this actor's RUNNING loop should exit: no parents
// left and nothing buffered, per spec.md §4.5.
func (c *Consumer) Idle() bool {
	c.mu.Lock()
	noParents := len(c.parents) == 0
	c.mu.Unlock()
	return noParents && c.buffered.AllEmpty()
}

// StateTag returns the current per-edge state_tag snapshot.
func (c *Consumer) StateTag() flowtype.StateTag { return c.sched.StateTag() }

// LatestInputReceived returns a copy of the per-edge latest_input_received
// map, for checkpoint snapshotting.
func (c *Consumer) LatestInputReceived() flowtype.StateTag { return c.latestInputReceived.Clone() }

// Parents returns a deep copy of the current parent routing table, for
// checkpoint snapshotting and for re-registering after an address change.
func (c *Consumer) Parents() map[flowtype.NodeId]map[int]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[flowtype.NodeId]map[int]string, len(c.parents))
	for node, channels := range c.parents {
		cp := make(map[int]string, len(channels))
		for ch, addr := range channels {
			cp[ch] = addr
		}
		out[node] = cp
	}
	return out
}

// UpdateParentAddress re-routes a parent edge's address, used when a
// parent restarts elsewhere (spec.md §4.7's "address changes").
func (c *Consumer) UpdateParentAddress(node flowtype.NodeId, channel int, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.parents[node]; !ok {
		c.parents[node] = make(map[int]string)
	}
	c.parents[node][channel] = address
}

// TruncateStateTagLog discards every logged StateTag entry up to and
// including upTo — called after a successful checkpoint, per spec.md
// §4.7.
func (c *Consumer) TruncateStateTagLog(ctx context.Context, upTo flowtype.StateTag) error {
	return c.stateTagLog.Truncate(ctx, c.id, upTo)
}
