// Package dataset defines the narrow interfaces to the two external
// dataset collaborators spec.md §1 places out of scope: the physical
// reader an input actor iterates, and the output dataset a blocking sink
// actor writes into. Concrete adaptors live in the csv and objectstore
// subpackages.
package dataset

import (
	"context"

	"github.com/estuary/flowcore/internal/flowtype"
)

// Reader is a resumable (position, batch) stream over an external
// dataset, as spec.md §4.6 describes. Next returns ok=false once the
// stream is exhausted.
type Reader interface {
	Next(ctx context.Context) (position string, batch flowtype.Batch, ok bool, err error)
	Close() error
}

// ReaderFactory opens a Reader for one channel of a dataset partitioned
// across numChannels mappers, resuming from resumeFrom (empty for a fresh
// start).
type ReaderFactory interface {
	Open(ctx context.Context, channel, numChannels int, resumeFrom string) (Reader, error)
}

// Output is the external output dataset collaborator a blocking sink
// writes into, per spec.md §4.8: store each result under a content key
// and notify the collaborator of (host, key, size).
type Output interface {
	// Put stores batch under a key derived from (node, channel,
	// objectCount) and returns that key and its serialised size.
	Put(ctx context.Context, node flowtype.NodeId, channel, objectCount int, batch flowtype.Batch) (key string, size int, err error)
	// Notify informs the collaborator that (host, key, size) is ready.
	Notify(ctx context.Context, host, key string, size int) error
}
