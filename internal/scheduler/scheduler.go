// Package scheduler implements the two scheduling disciplines of spec.md
// §4.4: greedy normal-mode selection over buffered inputs, and
// deterministic replay-mode selection driven by a recovered actor's
// expected_path. Both operate purely on in-memory state handed in by the
// caller; the scheduler never touches a transport or a store directly.
package scheduler

import (
	"github.com/estuary/flowcore/internal/flowerr"
	"github.com/estuary/flowcore/internal/flowtype"
)

// Buffers is the mutable BufferedInputs collection: per-edge queues of
// batches accepted but not yet executed. The scheduler only ever reads
// lengths and drains whole or partial queues; ownership remains with the
// caller (internal/actor).
type Buffers interface {
	// Len returns the number of buffered batches for edge.
	Len(edge flowtype.EdgeId) int
	// Edges returns every edge with a non-empty or tracked queue, in no
	// particular order.
	Edges() []flowtype.EdgeId
	// Drain removes and returns up to n batches from the head of edge's
	// queue, in arrival order. It returns fewer than n only if the queue
	// holds fewer than n; callers must check the returned count.
	Drain(edge flowtype.EdgeId, n int) []flowtype.Batch
}

// Decision is the scheduler's output: the edge chosen and its merged
// batch. A zero-value Decision (Empty == true) means "no edge is ready".
type Decision struct {
	Empty bool
	Edge  flowtype.EdgeId
	Batch flowtype.Batch
}

// Scheduler tracks one actor's current state_tag and (once recovering) its
// expected_path, and chooses what to execute next.
type Scheduler struct {
	current      flowtype.StateTag
	expectedPath []flowtype.StateTag
	logSnapshot  func(flowtype.StateTag)
}

// New returns a Scheduler seeded with the actor's current state_tag
// (typically all zeros, or restored from a checkpoint) and a callback used
// to append every new snapshot to the StateTagLog.
func New(current flowtype.StateTag, logSnapshot func(flowtype.StateTag)) *Scheduler {
	return &Scheduler{current: current.Clone(), logSnapshot: logSnapshot}
}

// LoadExpectedPath installs the sequence of StateTag snapshots read from
// the StateTagLog at recovery. While non-empty, Next operates in replay
// mode; once drained, it reverts to normal greedy selection.
func (s *Scheduler) LoadExpectedPath(path []flowtype.StateTag) {
	s.expectedPath = append([]flowtype.StateTag(nil), path...)
}

// Replaying reports whether the scheduler still has expected_path entries
// left to reproduce.
func (s *Scheduler) Replaying() bool { return len(s.expectedPath) > 0 }

// StateTag returns the scheduler's current (post last-decision) tag.
func (s *Scheduler) StateTag() flowtype.StateTag { return s.current.Clone() }

// Next chooses the next edge to execute, per spec.md §4.4.
func (s *Scheduler) Next(buf Buffers) (Decision, error) {
	if len(s.expectedPath) > 0 {
		return s.nextReplay(buf)
	}
	return s.nextNormal(buf)
}

func (s *Scheduler) nextNormal(buf Buffers) (Decision, error) {
	var best flowtype.EdgeId
	bestLen := 0
	found := false

	for _, e := range buf.Edges() {
		n := buf.Len(e)
		if n == 0 {
			continue
		}
		if !found || n > bestLen || (n == bestLen && e.Less(best)) {
			best, bestLen, found = e, n, true
		}
	}
	if !found {
		return Decision{Empty: true}, nil
	}

	batches := buf.Drain(best, bestLen)
	merged := flowtype.Concat(batches)

	next := s.current.Clone()
	next[best] += len(batches)
	s.current = next
	s.logSnapshot(s.current.Clone())

	return Decision{Edge: best, Batch: merged}, nil
}

func (s *Scheduler) nextReplay(buf Buffers) (Decision, error) {
	expected := s.expectedPath[0]

	var target flowtype.EdgeId
	diff := 0
	found := false
	for e, want := range expected {
		d := want - s.current[e]
		if d > 0 {
			if found {
				return Decision{}, &flowerr.TopologyInvariantViolation{
					Detail: "replay diff has more than one positive component",
				}
			}
			target, diff, found = e, d, true
		} else if d < 0 {
			return Decision{}, &flowerr.TopologyInvariantViolation{
				Detail: "replay diff has a negative component",
			}
		}
	}
	if !found {
		// expected == current exactly; this snapshot is already satisfied,
		// pop it and try the next one.
		s.expectedPath = s.expectedPath[1:]
		if len(s.expectedPath) == 0 {
			return s.nextNormal(buf)
		}
		return s.nextReplay(buf)
	}

	if buf.Len(target) < diff {
		return Decision{Empty: true}, nil
	}

	batches := buf.Drain(target, diff)
	merged := flowtype.Concat(batches)

	s.current = expected.Clone()
	s.expectedPath = s.expectedPath[1:]
	s.logSnapshot(s.current.Clone())

	return Decision{Edge: target, Batch: merged}, nil
}
