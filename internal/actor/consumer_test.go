package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/store/memstore"
	"github.com/estuary/flowcore/internal/transport/inmembus"
)

func newTestConsumer(t *testing.T, parentNode flowtype.NodeId) (*Consumer, flowtype.EdgeId) {
	t.Helper()
	var ctx = context.Background()
	var bus = inmembus.New()
	var id = flowtype.ActorId{Node: "j", Channel: 0}
	var parents = map[flowtype.NodeId]map[int]string{parentNode: {0: "local://a-0"}}

	c, err := NewConsumer(ctx, id, bus, nil, memstore.NewStateTagLog(), parents, flowtype.StateTag{}, flowtype.StateTag{})
	require.NoError(t, err)
	return c, flowtype.EdgeId{ParentNode: parentNode, ParentChannel: 0}
}

func TestAdmitRejectsStaleArrival(t *testing.T) {
	c, edge := newTestConsumer(t, "a")

	require.True(t, c.admit(flowtype.Metadata{SrcNode: "a", SrcChannel: 0, Seq: 1}, flowtype.DataPayload(flowtype.Batch{})))
	// Executing the buffered batch merges seq 1, advancing state_tag to 1.
	decision, err := c.Next()
	require.NoError(t, err)
	require.False(t, decision.Empty)
	// A duplicate or stale re-delivery of seq 1 must be dropped, not re-buffered.
	require.False(t, c.admit(flowtype.Metadata{SrcNode: "a", SrcChannel: 0, Seq: 1}, flowtype.DataPayload(flowtype.Batch{})))
	require.Equal(t, 0, c.buffered.Len(edge))
}

func TestAdmitRejectsFutureArrival(t *testing.T) {
	c, edge := newTestConsumer(t, "a")

	// latest_input_received starts at 0 for this edge, so seq 2 is a gap:
	// seq 1 was never observed, and the filter must wait for a resend.
	require.False(t, c.admit(flowtype.Metadata{SrcNode: "a", SrcChannel: 0, Seq: 2}, flowtype.DataPayload(flowtype.Batch{})))
	require.Equal(t, 0, c.buffered.Len(edge))
}

func TestAdmitAcceptsInOrderArrivals(t *testing.T) {
	c, edge := newTestConsumer(t, "a")

	require.True(t, c.admit(flowtype.Metadata{SrcNode: "a", SrcChannel: 0, Seq: 1}, flowtype.DataPayload(flowtype.Batch{Rows: []flowtype.Row{{"x": 1}}})))
	require.True(t, c.admit(flowtype.Metadata{SrcNode: "a", SrcChannel: 0, Seq: 2}, flowtype.DataPayload(flowtype.Batch{Rows: []flowtype.Row{{"x": 2}}})))
	require.Equal(t, 2, c.buffered.Len(edge))
	require.Equal(t, 2, c.latestInputReceived[edge])
}

func TestAdmitDonePayloadRemovesParentChannel(t *testing.T) {
	c, edge := newTestConsumer(t, "a")

	require.True(t, c.admit(flowtype.Metadata{SrcNode: "a", SrcChannel: 0, Seq: 1}, flowtype.DonePayload()))
	require.True(t, c.Idle())
	require.Empty(t, c.Parents())
	_ = edge
}

func TestConsumerIdleRequiresNoParentsAndEmptyBuffer(t *testing.T) {
	c, _ := newTestConsumer(t, "a")
	require.False(t, c.Idle(), "one parent still registered")
}

func TestPollPairsPayloadAndMetadataByArrivalOrder(t *testing.T) {
	var ctx = context.Background()
	var bus = inmembus.New()
	var id = flowtype.ActorId{Node: "j", Channel: 0}
	var parents = map[flowtype.NodeId]map[int]string{"a": {0: "local://a-0"}}

	c, err := NewConsumer(ctx, id, bus, nil, memstore.NewStateTagLog(), parents, flowtype.StateTag{}, flowtype.StateTag{})
	require.NoError(t, err)

	// Publish two metadata entries before either payload arrives, mirroring
	// the non-atomic publish the admission filter must tolerate.
	require.NoError(t, bus.PublishMetadata(ctx, id, flowtype.Metadata{SrcNode: "a", SrcChannel: 0, Seq: 1}))
	require.NoError(t, bus.PublishMetadata(ctx, id, flowtype.Metadata{SrcNode: "a", SrcChannel: 0, Seq: 2}))
	require.NoError(t, bus.PublishPayload(ctx, id, flowtype.DataPayload(flowtype.Batch{Rows: []flowtype.Row{{"x": 1}}})))
	require.NoError(t, bus.PublishPayload(ctx, id, flowtype.DataPayload(flowtype.Batch{Rows: []flowtype.Row{{"x": 2}}})))

	var admitted = c.poll()
	require.Equal(t, 2, admitted)
	require.Equal(t, 2, c.buffered.Len(flowtype.EdgeId{ParentNode: "a", ParentChannel: 0}))
}
