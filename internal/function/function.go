// Package function defines Object, the per-operator user-supplied
// function spec.md §1 places out of scope (map, filter, join). The core
// only needs to invoke it, serialise its state into a checkpoint, and
// restore it from one.
package function

import "github.com/estuary/flowcore/internal/flowtype"

// Object is implemented by the map/filter/join logic an actor wraps.
// Initialize is called once in BOOTING with the actor's own channel; Apply
// is called once per scheduled execution with the merged batch from one
// parent edge; Done is called exactly once, with the actor's own channel,
// on the RUNNING -> DRAINING transition once every parent has signalled
// completion, and may return a final batch to flush buffered state (e.g.
// the unmatched side of a join).
type Object interface {
	Initialize(channel int) error
	Apply(parent flowtype.NodeId, batch flowtype.Batch) ([]flowtype.Batch, error)
	Done(channel int) ([]flowtype.Batch, error)
	Serialize() ([]byte, error)
	Deserialize([]byte) error
}

// Identity is a trivial Object that passes every batch through unchanged
// and carries no state; useful for tests and as a Non-goal-compliant
// stand-in when the topology needs no transformation.
type Identity struct{}

var _ Object = Identity{}

func (Identity) Initialize(int) error { return nil }

func (Identity) Apply(_ flowtype.NodeId, batch flowtype.Batch) ([]flowtype.Batch, error) {
	return []flowtype.Batch{batch}, nil
}

func (Identity) Done(int) ([]flowtype.Batch, error) { return nil, nil }

func (Identity) Serialize() ([]byte, error) { return nil, nil }

func (Identity) Deserialize([]byte) error { return nil }
