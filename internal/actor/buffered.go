package actor

import (
	"sync"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/scheduler"
)

// bufferedInputs implements scheduler.Buffers: the BufferedInputs entity
// of spec.md §3, owned entirely by the consuming actor's single-threaded
// event loop.
type bufferedInputs struct {
	mu     sync.Mutex
	queues map[flowtype.EdgeId][]flowtype.Batch
}

var _ scheduler.Buffers = (*bufferedInputs)(nil)

func newBufferedInputs() *bufferedInputs {
	return &bufferedInputs{queues: make(map[flowtype.EdgeId][]flowtype.Batch)}
}

// Track ensures edge has a (possibly empty) queue, so it is visible to
// Edges() even before its first arrival — needed so the scheduler can tell
// "no parents left, nothing buffered" apart from "an edge exists but is
// momentarily empty".
func (b *bufferedInputs) Track(edge flowtype.EdgeId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[edge]; !ok {
		b.queues[edge] = nil
	}
}

func (b *bufferedInputs) Untrack(edge flowtype.EdgeId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, edge)
}

func (b *bufferedInputs) Append(edge flowtype.EdgeId, batch flowtype.Batch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[edge] = append(b.queues[edge], batch)
}

func (b *bufferedInputs) Len(edge flowtype.EdgeId) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[edge])
}

func (b *bufferedInputs) Edges() []flowtype.EdgeId {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]flowtype.EdgeId, 0, len(b.queues))
	for e := range b.queues {
		out = append(out, e)
	}
	return out
}

func (b *bufferedInputs) Drain(edge flowtype.EdgeId, n int) []flowtype.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queues[edge]
	if n > len(q) {
		n = len(q)
	}
	out := append([]flowtype.Batch(nil), q[:n]...)
	b.queues[edge] = q[n:]
	return out
}

// AllEmpty reports whether every tracked edge's queue is empty, the
// "buffered inputs empty" half of the RUNNING loop's exit condition in
// spec.md §4.5.
func (b *bufferedInputs) AllEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.queues {
		if len(q) > 0 {
			return false
		}
	}
	return true
}

// TrackedEdges reports how many edges are currently tracked (parent
// channels still registered, plus edges that signalled done while batches
// were still queued for them).
func (b *bufferedInputs) TrackedEdges() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues)
}
