// Package etcdbus implements transport.Bus on top of
// go.etcd.io/etcd/client/v3: a topic is a key prefix, a publish is a Put
// under "<topic>/<counter>", and a subscribe is a Watch on the prefix.
// Because payload and metadata are two independent keys, a publish of the
// pair is not atomic from the consumer's perspective — exactly the
// interleaving spec.md §4.1 requires the admission loop to tolerate.
package etcdbus

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/transport"
)

// Bus adapts an etcd client to transport.Bus.
type Bus struct {
	Client *clientv3.Client
}

var _ transport.Bus = (*Bus)(nil)

func mailboxTopic(id flowtype.ActorId) string {
	return fmt.Sprintf("mailbox-%s-%d", id.Node, id.Channel)
}

func mailboxIdTopic(id flowtype.ActorId) string {
	return fmt.Sprintf("mailbox-id-%s-%d", id.Node, id.Channel)
}

func nodeDoneTopic(node flowtype.NodeId) string {
	return "node-done-" + string(node)
}

func inputDoneTopic(node flowtype.NodeId) string {
	return "input-done-" + string(node)
}

func encode(v any) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return "", errors.Wrap(err, "encoding bus payload")
	}
	return buf.String(), nil
}

// publishUnderTopic writes value under a fresh, monotonically increasing
// key within topic's prefix. etcd's own mod-revision ordering gives the
// watch stream a stable publish order without the bus needing its own
// sequence counter.
func (b *Bus) publishUnderTopic(ctx context.Context, topic string, value string) error {
	key := topic + "/" + strconv.FormatInt(nowRevisionHint(), 10)
	_, err := b.Client.Put(ctx, key, value)
	return errors.Wrapf(err, "publishing to %s", topic)
}

// nowRevisionHint is a key disambiguator only; etcd's own per-key revision
// (not this value) determines watch ordering, so collisions here just
// overwrite a key rather than corrupt ordering. It is a process-local
// counter shared by every publish; it restarts at 1 in a new process.
var revisionHint int64

func nowRevisionHint() int64 {
	revisionHint++
	return revisionHint
}

func (b *Bus) PublishPayload(ctx context.Context, to flowtype.ActorId, payload flowtype.Payload) error {
	v, err := encode(payload)
	if err != nil {
		return err
	}
	return b.publishUnderTopic(ctx, mailboxTopic(to), v)
}

func (b *Bus) PublishMetadata(ctx context.Context, to flowtype.ActorId, meta flowtype.Metadata) error {
	v, err := encode(meta)
	if err != nil {
		return err
	}
	return b.publishUnderTopic(ctx, mailboxIdTopic(to), v)
}

func (b *Bus) SubscribePayload(ctx context.Context, self flowtype.ActorId) (<-chan flowtype.Payload, error) {
	out := make(chan flowtype.Payload, 256)
	watchCh := b.Client.Watch(ctx, mailboxTopic(self)+"/", clientv3.WithPrefix())
	go func() {
		defer close(out)
		for resp := range watchCh {
			for _, ev := range resp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}
				var p flowtype.Payload
				if err := gob.NewDecoder(bytes.NewReader(ev.Kv.Value)).Decode(&p); err != nil {
					continue
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *Bus) SubscribeMetadata(ctx context.Context, self flowtype.ActorId) (<-chan flowtype.Metadata, error) {
	out := make(chan flowtype.Metadata, 256)
	watchCh := b.Client.Watch(ctx, mailboxIdTopic(self)+"/", clientv3.WithPrefix())
	go func() {
		defer close(out)
		for resp := range watchCh {
			for _, ev := range resp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}
				var m flowtype.Metadata
				if err := gob.NewDecoder(bytes.NewReader(ev.Kv.Value)).Decode(&m); err != nil {
					continue
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *Bus) PublishNodeDone(ctx context.Context, node flowtype.NodeId, channel int) error {
	return b.publishUnderTopic(ctx, nodeDoneTopic(node), strconv.Itoa(channel))
}

func (b *Bus) SubscribeNodeDone(ctx context.Context, node flowtype.NodeId) (<-chan int, error) {
	out := make(chan int, 256)
	watchCh := b.Client.Watch(ctx, nodeDoneTopic(node)+"/", clientv3.WithPrefix())
	go func() {
		defer close(out)
		for resp := range watchCh {
			for _, ev := range resp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}
				channel, err := strconv.Atoi(string(ev.Kv.Value))
				if err != nil {
					continue
				}
				select {
				case out <- channel:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *Bus) PublishInputDone(ctx context.Context, node flowtype.NodeId) error {
	return b.publishUnderTopic(ctx, inputDoneTopic(node), "done")
}

func (b *Bus) SubscribeInputDone(ctx context.Context, node flowtype.NodeId) (<-chan struct{}, error) {
	out := make(chan struct{}, 256)
	watchCh := b.Client.Watch(ctx, inputDoneTopic(node)+"/", clientv3.WithPrefix())
	go func() {
		defer close(out)
		for resp := range watchCh {
			for range resp.Events {
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
