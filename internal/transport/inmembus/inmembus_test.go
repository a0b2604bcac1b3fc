package inmembus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/flowcore/internal/flowtype"
)

func TestPublishPayloadDeliversToSubscriber(t *testing.T) {
	var ctx = context.Background()
	var b = New()
	var id = flowtype.ActorId{Node: "j", Channel: 0}

	ch, err := b.SubscribePayload(ctx, id)
	require.NoError(t, err)

	require.NoError(t, b.PublishPayload(ctx, id, flowtype.DataPayload(flowtype.Batch{Rows: []flowtype.Row{{"a": 1}}})))
	got := <-ch
	require.Len(t, got.Batch.Rows, 1)
}

func TestPublishPayloadToFullMailboxIsDroppedNotBlocked(t *testing.T) {
	var ctx = context.Background()
	var b = New()
	var id = flowtype.ActorId{Node: "j", Channel: 0}

	for i := 0; i < chanBuffer+1; i++ {
		require.NoError(t, b.PublishPayload(ctx, id, flowtype.DataPayload(flowtype.Batch{})))
	}
	// The (chanBuffer+1)th publish must not block this test, confirming the
	// best-effort, non-blocking send spec.md's TransientPublishError handling
	// relies on.
}

func TestNodeDoneAndInputDoneFanOutIndependently(t *testing.T) {
	var ctx = context.Background()
	var b = New()

	nodeDone, err := b.SubscribeNodeDone(ctx, "s")
	require.NoError(t, err)
	inputDone, err := b.SubscribeInputDone(ctx, "in")
	require.NoError(t, err)

	require.NoError(t, b.PublishNodeDone(ctx, "s", 2))
	require.NoError(t, b.PublishInputDone(ctx, "in"))

	require.Equal(t, 2, <-nodeDone)
	<-inputDone
}

func TestSubscribeIsIdempotentPerActor(t *testing.T) {
	var ctx = context.Background()
	var b = New()
	var id = flowtype.ActorId{Node: "j", Channel: 0}

	ch1, err := b.SubscribePayload(ctx, id)
	require.NoError(t, err)
	ch2, err := b.SubscribePayload(ctx, id)
	require.NoError(t, err)

	require.NoError(t, b.PublishPayload(ctx, id, flowtype.DataPayload(flowtype.Batch{})))
	got := <-ch1
	require.False(t, got.Done)
	_ = ch2
}
