// Package actor implements the actor state machine of spec.md §4.5 and its
// three specialisations: input (input.go), non-blocking task (task.go),
// and blocking sink (sink.go). producer.go holds the half of the RPC
// surface and push/recovery logic shared by any actor with outgoing
// edges (input and non-blocking task actors); consumer.go holds the half
// shared by any actor with incoming edges (non-blocking task and sink
// actors).
package actor

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/outputlog"
	"github.com/estuary/flowcore/internal/rpc"
	"github.com/estuary/flowcore/internal/transport"
)

// targetEntry is the RoutingEntry for one downstream logical node: which
// channel lives at which address, how a batch is partitioned across its
// channels, and which of its channels this actor still believes alive.
type targetEntry struct {
	channelToAddress map[int]string
	partition        flowtype.PartitionSpec
	alive            map[int]bool
}

// Producer holds everything an input or non-blocking task actor needs to
// push batches downstream, retain them for replay, and answer recovery
// RPCs from its consumers.
type Producer struct {
	id     flowtype.ActorId
	bus    transport.Bus
	dialer rpc.PeerDialer

	log *outputlog.Log

	mu       sync.Mutex
	targets  map[flowtype.NodeId]*targetEntry
	watchers map[flowtype.NodeId]<-chan int
}

// NewProducer constructs an empty Producer. outputLog may be a freshly
// restored log when recovering, or outputlog.New() for a fresh actor.
func NewProducer(id flowtype.ActorId, bus transport.Bus, dialer rpc.PeerDialer, outputLog *outputlog.Log) *Producer {
	return &Producer{
		id:       id,
		bus:      bus,
		dialer:   dialer,
		log:      outputLog,
		targets:  make(map[flowtype.NodeId]*targetEntry),
		watchers: make(map[flowtype.NodeId]<-chan int),
	}
}

// AppendToTargets registers a new downstream edge, per spec.md §6.
func (p *Producer) AppendToTargets(ctx context.Context, target flowtype.NodeId, channelToAddress map[int]string, partition flowtype.PartitionSpec) error {
	alive := make(map[int]bool, len(channelToAddress))
	for ch := range channelToAddress {
		alive[ch] = true
		p.log.RegisterTarget(flowtype.ActorId{Node: target, Channel: ch})
	}

	watcher, err := p.bus.SubscribeNodeDone(ctx, target)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.targets[target] = &targetEntry{channelToAddress: channelToAddress, partition: partition, alive: alive}
	p.watchers[target] = watcher
	p.mu.Unlock()
	return nil
}

// UpdateTargetIP re-routes target's channel to a new address.
func (p *Producer) UpdateTargetIP(ctx context.Context, target flowtype.ActorId, newAddress string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	te, ok := p.targets[target.Node]
	if !ok {
		return nil
	}
	te.channelToAddress[target.Channel] = newAddress
	te.alive[target.Channel] = true
	return nil
}

// UpdateTargetIPAndHelpRecover re-routes then immediately resends logged
// outputs above consumerStateTag.
func (p *Producer) UpdateTargetIPAndHelpRecover(ctx context.Context, target flowtype.ActorId, consumerStateTag uint64, newAddress string) error {
	if err := p.UpdateTargetIP(ctx, target, newAddress); err != nil {
		return err
	}
	return p.HelpDownstreamRecover(ctx, target, consumerStateTag)
}

// HelpDownstreamRecover resends every OutputLog entry above
// consumerStateTag to target, per spec.md §4.7.
func (p *Producer) HelpDownstreamRecover(ctx context.Context, target flowtype.ActorId, consumerStateTag uint64) error {
	log.WithFields(log.Fields{"producer": p.id, "target": target, "cursor": consumerStateTag}).
		Info("resending logged outputs for downstream recovery")

	p.log.ResendAbove(target, consumerStateTag, func(e outputlog.Entry) {
		_ = p.bus.PublishPayload(ctx, target, e.Payload)
		_ = p.bus.PublishMetadata(ctx, target, flowtype.Metadata{
			SrcNode:    p.id.Node,
			SrcChannel: p.id.Channel,
			Seq:        e.Seq,
		})
	})
	return nil
}

// TruncateLoggedOutputs authorises discarding OutputLog entries target has
// checkpointed past, per spec.md §4.2.
func (p *Producer) TruncateLoggedOutputs(ctx context.Context, target flowtype.ActorId, newCursor uint64) error {
	p.log.Truncate(target, newCursor)
	return nil
}

// updateTargets drains pending node-done announcements for every target,
// non-blockingly, mirroring the source's own polling update_targets(). It
// returns whether at least one target channel remains alive.
func (p *Producer) updateTargets() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	anyAlive := false
	for node, te := range p.targets {
		ch := p.watchers[node]
	drain:
		for {
			select {
			case channel := <-ch:
				delete(te.alive, channel)
				p.log.DropTarget(flowtype.ActorId{Node: node, Channel: channel})
			default:
				break drain
			}
		}
		if len(te.alive) == 0 {
			delete(p.targets, node)
			delete(p.watchers, node)
			continue
		}
		anyAlive = true
	}
	return anyAlive
}

// Push partitions batch across every alive downstream channel and
// publishes it, after logging it under a fresh seq. It returns false if
// no downstream channel is alive anywhere — the signal for the actor to
// exit early to DRAINING per spec.md §4.5.
func (p *Producer) Push(ctx context.Context, batch flowtype.Batch) (alive bool, err error) {
	seq := p.log.PushNext(flowtype.DataPayload(batch))

	if !p.updateTargets() {
		return false, nil
	}

	p.mu.Lock()
	snapshot := make(map[flowtype.NodeId]targetEntry, len(p.targets))
	for node, te := range p.targets {
		snapshot[node] = *te
	}
	p.mu.Unlock()

	for node, te := range snapshot {
		numChannels := len(te.channelToAddress)
		for channel := range te.alive {
			sub := te.partition.Route(batch, channel, numChannels)
			target := flowtype.ActorId{Node: node, Channel: channel}
			if err := p.bus.PublishPayload(ctx, target, flowtype.DataPayload(sub)); err != nil {
				log.WithError(err).WithField("target", target).Warn("transient publish failure, relying on replay")
			}
			if err := p.bus.PublishMetadata(ctx, target, flowtype.Metadata{SrcNode: p.id.Node, SrcChannel: p.id.Channel, Seq: seq}); err != nil {
				log.WithError(err).WithField("target", target).Warn("transient metadata publish failure, relying on replay")
			}
		}
	}
	return true, nil
}

// PushDone publishes the "done" sentinel to every alive downstream
// channel, unpartitioned, per spec.md §6.
func (p *Producer) PushDone(ctx context.Context) (alive bool, err error) {
	seq := p.log.PushNext(flowtype.DonePayload())

	if !p.updateTargets() {
		return false, nil
	}

	p.mu.Lock()
	snapshot := make(map[flowtype.NodeId]targetEntry, len(p.targets))
	for node, te := range p.targets {
		snapshot[node] = *te
	}
	p.mu.Unlock()

	for node, te := range snapshot {
		for channel := range te.alive {
			target := flowtype.ActorId{Node: node, Channel: channel}
			_ = p.bus.PublishPayload(ctx, target, flowtype.DonePayload())
			_ = p.bus.PublishMetadata(ctx, target, flowtype.Metadata{SrcNode: p.id.Node, SrcChannel: p.id.Channel, Seq: seq})
		}
	}
	return true, nil
}

// AnnounceDone publishes this actor's own channel id on node-done-<self>,
// the DRAINING -> DONE transition of spec.md §4.5.
func (p *Producer) AnnounceDone(ctx context.Context) error {
	return p.bus.PublishNodeDone(ctx, p.id.Node, p.id.Channel)
}

// OutputLog exposes the underlying log for checkpoint snapshotting.
func (p *Producer) OutputLog() *outputlog.Log { return p.log }
