// Package inmembus implements transport.Bus as in-process Go channels. It
// backs unit tests and the single-process demo driver; it delivers payload
// and metadata on independent buffered channels with non-blocking sends, so
// the same interleaving tolerance the distributed etcdbus requires is
// exercised here too.
package inmembus

import (
	"context"
	"sync"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/transport"
)

const chanBuffer = 256

// Bus is an in-memory transport.Bus. The zero value is not usable; use New.
type Bus struct {
	mu sync.Mutex

	payload    map[flowtype.ActorId]chan flowtype.Payload
	metadata   map[flowtype.ActorId]chan flowtype.Metadata
	nodeDone   map[flowtype.NodeId]chan int
	inputDone  map[flowtype.NodeId]chan struct{}
}

var _ transport.Bus = (*Bus)(nil)

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		payload:   make(map[flowtype.ActorId]chan flowtype.Payload),
		metadata:  make(map[flowtype.ActorId]chan flowtype.Metadata),
		nodeDone:  make(map[flowtype.NodeId]chan int),
		inputDone: make(map[flowtype.NodeId]chan struct{}),
	}
}

func (b *Bus) payloadCh(id flowtype.ActorId) chan flowtype.Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.payload[id]
	if !ok {
		ch = make(chan flowtype.Payload, chanBuffer)
		b.payload[id] = ch
	}
	return ch
}

func (b *Bus) metadataCh(id flowtype.ActorId) chan flowtype.Metadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.metadata[id]
	if !ok {
		ch = make(chan flowtype.Metadata, chanBuffer)
		b.metadata[id] = ch
	}
	return ch
}

func (b *Bus) nodeDoneCh(node flowtype.NodeId) chan int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.nodeDone[node]
	if !ok {
		ch = make(chan int, chanBuffer)
		b.nodeDone[node] = ch
	}
	return ch
}

func (b *Bus) inputDoneCh(node flowtype.NodeId) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.inputDone[node]
	if !ok {
		ch = make(chan struct{}, chanBuffer)
		b.inputDone[node] = ch
	}
	return ch
}

// PublishPayload is a non-blocking best-effort send: a full mailbox drops
// the publish, matching spec.md §7's TransientPublishError handling — the
// OutputLog still has the entry for a later resend.
func (b *Bus) PublishPayload(ctx context.Context, to flowtype.ActorId, payload flowtype.Payload) error {
	select {
	case b.payloadCh(to) <- payload:
	default:
	}
	return nil
}

func (b *Bus) PublishMetadata(ctx context.Context, to flowtype.ActorId, meta flowtype.Metadata) error {
	select {
	case b.metadataCh(to) <- meta:
	default:
	}
	return nil
}

func (b *Bus) SubscribePayload(ctx context.Context, self flowtype.ActorId) (<-chan flowtype.Payload, error) {
	return b.payloadCh(self), nil
}

func (b *Bus) SubscribeMetadata(ctx context.Context, self flowtype.ActorId) (<-chan flowtype.Metadata, error) {
	return b.metadataCh(self), nil
}

func (b *Bus) PublishNodeDone(ctx context.Context, node flowtype.NodeId, channel int) error {
	select {
	case b.nodeDoneCh(node) <- channel:
	default:
	}
	return nil
}

func (b *Bus) SubscribeNodeDone(ctx context.Context, node flowtype.NodeId) (<-chan int, error) {
	return b.nodeDoneCh(node), nil
}

func (b *Bus) PublishInputDone(ctx context.Context, node flowtype.NodeId) error {
	select {
	case b.inputDoneCh(node) <- struct{}{}:
	default:
	}
	return nil
}

func (b *Bus) SubscribeInputDone(ctx context.Context, node flowtype.NodeId) (<-chan struct{}, error) {
	return b.inputDoneCh(node), nil
}
