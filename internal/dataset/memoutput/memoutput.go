// Package memoutput implements dataset.Output in memory, for tests and
// the single-process demo driver.
package memoutput

import (
	"context"
	"fmt"
	"sync"

	"github.com/estuary/flowcore/internal/dataset"
	"github.com/estuary/flowcore/internal/flowtype"
)

// Output records every put batch, keyed the same way objectstore.Output
// does, so tests can assert on exactly-once delivery.
type Output struct {
	mu         sync.Mutex
	objects    map[string]flowtype.Batch
	notified   []Notification
}

// Notification records a single Notify call for test assertions.
type Notification struct {
	Host string
	Key  string
	Size int
}

var _ dataset.Output = (*Output)(nil)

// New returns an empty Output.
func New() *Output {
	return &Output{objects: make(map[string]flowtype.Batch)}
}

func (o *Output) Put(_ context.Context, node flowtype.NodeId, channel, objectCount int, batch flowtype.Batch) (string, int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	k := fmt.Sprintf("%s/%d/%d", node, channel, objectCount)
	o.objects[k] = batch
	return k, len(batch.Rows), nil
}

func (o *Output) Notify(_ context.Context, host, key string, size int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notified = append(o.notified, Notification{Host: host, Key: key, Size: size})
	return nil
}

// Rows returns every row ever put across every object, in Put order per
// object but with no cross-object ordering guarantee — mirroring spec.md
// §5's "no ordering across sibling edges".
func (o *Output) Rows() []flowtype.Row {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []flowtype.Row
	for _, batch := range o.objects {
		out = append(out, batch.Rows...)
	}
	return out
}

// Objects returns a copy of the key -> batch map for direct inspection.
func (o *Output) Objects() map[string]flowtype.Batch {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]flowtype.Batch, len(o.objects))
	for k, v := range o.objects {
		out[k] = v
	}
	return out
}
