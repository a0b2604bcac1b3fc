// Package objectstore implements dataset.Output on top of
// cloud.google.com/go/storage, a shared object store a blocking sink
// actor writes batches into.
package objectstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"

	"github.com/estuary/flowcore/internal/dataset"
	"github.com/estuary/flowcore/internal/flowtype"
)

// Output adapts a GCS bucket to dataset.Output. Each result lands under
// key "<node>/<channel>/<objectCount>", matching the content-key scheme
// of spec.md §4.8.
type Output struct {
	Client *storage.Client
	Bucket string
	// Host identifies this process for the Notify call's (host, key,
	// size) triple; it has no meaning to the object store itself.
	Host string
	// NotifyFn is called with the completed (host, key, size) triple,
	// standing in for the "external output dataset collaborator" spec.md
	// §4.8 says is notified of completed objects. Left nil it is a no-op,
	// matching a dev/test bucket with no registered consumer.
	NotifyFn func(ctx context.Context, host, key string, size int) error
}

var _ dataset.Output = (*Output)(nil)

func key(node flowtype.NodeId, channel, objectCount int) string {
	return fmt.Sprintf("%s/%d/%d", node, channel, objectCount)
}

func (o *Output) Put(ctx context.Context, node flowtype.NodeId, channel, objectCount int, batch flowtype.Batch) (string, int, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(batch); err != nil {
		return "", 0, errors.Wrap(err, "encoding sink batch")
	}

	k := key(node, channel, objectCount)
	w := o.Client.Bucket(o.Bucket).Object(k).NewWriter(ctx)
	if _, err := io.Copy(w, &buf); err != nil {
		w.Close()
		return "", 0, errors.Wrapf(err, "writing object %s", k)
	}
	if err := w.Close(); err != nil {
		return "", 0, errors.Wrapf(err, "finalizing object %s", k)
	}
	return k, int(w.Attrs().Size), nil
}

func (o *Output) Notify(ctx context.Context, host, k string, size int) error {
	if o.NotifyFn == nil {
		return nil
	}
	return o.NotifyFn(ctx, host, k, size)
}
