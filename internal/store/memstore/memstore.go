// Package memstore provides in-memory implementations of store.StateTagLog
// and store.Checkpoints, used by unit tests and by the single-process demo
// driver where a real etcd cluster would be overkill.
package memstore

import (
	"context"
	"sync"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/store"
)

// StateTagLog is a mutex-guarded map of actor id to an ordered slice of
// StateTag snapshots.
type StateTagLog struct {
	mu  sync.Mutex
	log map[flowtype.ActorId][]flowtype.StateTag
}

var _ store.StateTagLog = (*StateTagLog)(nil)

// NewStateTagLog returns an empty StateTagLog.
func NewStateTagLog() *StateTagLog {
	return &StateTagLog{log: make(map[flowtype.ActorId][]flowtype.StateTag)}
}

func (l *StateTagLog) Append(_ context.Context, id flowtype.ActorId, tag flowtype.StateTag) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log[id] = append(l.log[id], tag.Clone())
	return nil
}

func (l *StateTagLog) Range(_ context.Context, id flowtype.ActorId) ([]flowtype.StateTag, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]flowtype.StateTag, len(l.log[id]))
	for i, t := range l.log[id] {
		out[i] = t.Clone()
	}
	return out, nil
}

func (l *StateTagLog) Truncate(_ context.Context, id flowtype.ActorId, upTo flowtype.StateTag) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.log[id]
	for i, t := range entries {
		if t.Equal(upTo) {
			l.log[id] = append([]flowtype.StateTag(nil), entries[i+1:]...)
			return nil
		}
	}
	// upTo never logged: nothing to discard yet (e.g. a checkpoint taken
	// before the first snapshot was appended).
	return nil
}

// Checkpoints is a mutex-guarded map of actor id to its latest checkpoint.
type Checkpoints struct {
	mu sync.Mutex
	cp map[flowtype.ActorId]flowtype.Checkpoint
}

var _ store.Checkpoints = (*Checkpoints)(nil)

// NewCheckpoints returns an empty Checkpoints store.
func NewCheckpoints() *Checkpoints {
	return &Checkpoints{cp: make(map[flowtype.ActorId]flowtype.Checkpoint)}
}

func (c *Checkpoints) Put(_ context.Context, id flowtype.ActorId, cp flowtype.Checkpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cp[id] = cp
	return nil
}

func (c *Checkpoints) Get(_ context.Context, id flowtype.ActorId) (flowtype.Checkpoint, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp, ok := c.cp[id]
	return cp, ok, nil
}
