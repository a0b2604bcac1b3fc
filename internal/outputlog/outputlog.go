// Package outputlog implements the per-actor OutputLog and
// TargetOutputState described in spec.md §4.2: the producer-owned retained
// history of emitted batches, and the bookkeeping that decides how much of
// it can be discarded.
package outputlog

import (
	"sort"
	"sync"

	"github.com/estuary/flowcore/internal/flowtype"
)

// Entry pairs a logged payload with the metadata it was published with.
type Entry struct {
	Seq     uint64
	Payload flowtype.Payload
}

// Log is the OutputLog plus TargetOutputState for a single producer actor.
// All three operations from spec.md §4.2 (append, resend_above, truncate)
// are guarded by one mutex — the "output lock" — held for their entire
// duration, per spec.md §5. Callers MUST NOT hold the lock across blocking
// I/O; append/resend_above/truncate never perform I/O themselves, they only
// decide what to publish, leaving the actual transport call to the caller
// while still holding the lock (the publish calls here are therefore
// expected to be non-blocking best-effort sends to an async transport).
type Log struct {
	mu sync.Mutex

	entries map[uint64]flowtype.Payload
	// target is the TargetOutputState: highest seq each (target node,
	// target channel) has durably checkpointed past.
	target map[flowtype.ActorId]uint64
	// outSeq is the producer's own monotonically increasing sequence
	// counter. It is incremented under the same lock as Append so a
	// concurrent resend_above never observes a seq that hasn't been
	// logged yet.
	outSeq uint64
}

// New returns an empty Log.
func New() *Log {
	return &Log{
		entries: make(map[uint64]flowtype.Payload),
		target:  make(map[flowtype.ActorId]uint64),
	}
}

// Restore replaces the Log's contents from a checkpoint's OutputLog,
// TargetOutputState, and out_seq fields. Called once during recovery,
// before the actor is reachable by any peer.
func Restore(entries map[uint64]flowtype.Payload, target map[flowtype.ActorId]uint64, outSeq uint64) *Log {
	l := New()
	for seq, p := range entries {
		l.entries[seq] = p
	}
	for id, seq := range target {
		l.target[id] = seq
	}
	l.outSeq = outSeq
	return l
}

// Snapshot returns copies of the log's entries, target state, and out_seq,
// suitable for embedding in a Checkpoint.
func (l *Log) Snapshot() (map[uint64]flowtype.Payload, map[flowtype.ActorId]uint64, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make(map[uint64]flowtype.Payload, len(l.entries))
	for k, v := range l.entries {
		entries[k] = v
	}
	target := make(map[flowtype.ActorId]uint64, len(l.target))
	for k, v := range l.target {
		target[k] = v
	}
	return entries, target, l.outSeq
}

// PushNext increments out_seq and appends payload under it, atomically
// with respect to ResendAbove and Truncate, per spec.md §4.2's ordering
// requirement ("append... called after out_seq is incremented").
func (l *Log) PushNext(payload flowtype.Payload) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outSeq++
	l.entries[l.outSeq] = payload
	return l.outSeq
}

// RegisterTarget adds a downstream (target_node, target_channel) to
// TargetOutputState with an initial cursor of 0, called from
// append_to_targets when a new edge is wired up.
func (l *Log) RegisterTarget(target flowtype.ActorId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.target[target]; !ok {
		l.target[target] = 0
	}
}

// Append records seq -> payload. Callers increment out_seq and call Append
// before publishing, per spec.md §4.2.
func (l *Log) Append(seq uint64, payload flowtype.Payload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[seq] = payload
}

// ResendAbove publishes every logged entry with seq > cursor to target, in
// seq order, via publish. It holds the output lock for its entire
// duration, per spec.md §5.
func (l *Log) ResendAbove(target flowtype.ActorId, cursor uint64, publish func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var seqs []uint64
	for seq := range l.entries {
		if seq > cursor {
			seqs = append(seqs, seq)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	for _, seq := range seqs {
		publish(Entry{Seq: seq, Payload: l.entries[seq]})
	}
}

// Truncate sets TargetOutputState[target] = newCursor, recomputes the
// minimum cursor across all known targets, and removes entries with
// old_min <= seq < new_min. new_min itself is retained (SPEC_FULL.md Open
// Question #2), although ResendAbove (seq > cursor) never resends it to a
// target whose cursor is new_min; it is dropped by a later Truncate once
// the minimum moves past it.
func (l *Log) Truncate(target flowtype.ActorId, newCursor uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	oldMin, hadAny := l.minLocked()
	l.target[target] = newCursor
	newMin, _ := l.minLocked()

	if !hadAny || newMin <= oldMin {
		return
	}
	for seq := range l.entries {
		if seq >= oldMin && seq < newMin {
			delete(l.entries, seq)
		}
	}
}

// DropTarget removes target from TargetOutputState entirely — used when a
// consumer is declared dead, per spec.md §4.2, so its stale cursor no
// longer pins truncation. It then recomputes and applies the new minimum,
// same as Truncate.
func (l *Log) DropTarget(target flowtype.ActorId) {
	l.mu.Lock()
	defer l.mu.Unlock()

	oldMin, hadAny := l.minLocked()
	delete(l.target, target)
	newMin, stillHasAny := l.minLocked()

	if !hadAny || !stillHasAny || newMin <= oldMin {
		return
	}
	for seq := range l.entries {
		if seq >= oldMin && seq < newMin {
			delete(l.entries, seq)
		}
	}
}

// Len reports the number of retained entries, used by tests asserting
// bounded log growth (scenario 5 in spec.md §8).
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// minLocked returns the minimum TargetOutputState cursor across all known
// targets. Caller must hold l.mu.
func (l *Log) minLocked() (uint64, bool) {
	var min uint64
	first := true
	for _, v := range l.target {
		if first || v < min {
			min = v
			first = false
		}
	}
	return min, !first
}
