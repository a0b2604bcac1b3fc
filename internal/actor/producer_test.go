package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/outputlog"
	"github.com/estuary/flowcore/internal/transport/inmembus"
)

func TestProducerPushRoutesByPartition(t *testing.T) {
	var ctx = context.Background()
	var bus = inmembus.New()
	var id = flowtype.ActorId{Node: "m", Channel: 0}
	var p = NewProducer(id, bus, nil, outputlog.New())

	var target flowtype.NodeId = "j"
	require.NoError(t, p.AppendToTargets(ctx, target, map[int]string{0: "local://j-0", 1: "local://j-1"}, flowtype.PartitionSpec{ColumnMod: "key"}))

	alive, err := p.Push(ctx, flowtype.Batch{Rows: []flowtype.Row{{"key": 0}, {"key": 1}, {"key": 2}, {"key": 3}}})
	require.NoError(t, err)
	require.True(t, alive)

	payloadCh, err := bus.SubscribePayload(ctx, flowtype.ActorId{Node: "j", Channel: 0})
	require.NoError(t, err)
	got := <-payloadCh
	require.Len(t, got.Batch.Rows, 2)
	require.Equal(t, 0, got.Batch.Rows[0]["key"])
	require.Equal(t, 2, got.Batch.Rows[1]["key"])
}

func TestProducerPushReturnsDeadWhenAllTargetsGone(t *testing.T) {
	var ctx = context.Background()
	var bus = inmembus.New()
	var id = flowtype.ActorId{Node: "m", Channel: 0}
	var p = NewProducer(id, bus, nil, outputlog.New())

	var target flowtype.NodeId = "j"
	require.NoError(t, p.AppendToTargets(ctx, target, map[int]string{0: "local://j-0"}, flowtype.PartitionSpec{}))
	require.NoError(t, bus.PublishNodeDone(ctx, target, 0))

	alive, err := p.Push(ctx, flowtype.Batch{Rows: []flowtype.Row{{"x": 1}}})
	require.NoError(t, err)
	require.False(t, alive)
}

func TestProducerHelpDownstreamRecoverResendsAboveCursor(t *testing.T) {
	var ctx = context.Background()
	var bus = inmembus.New()
	var id = flowtype.ActorId{Node: "m", Channel: 0}
	var p = NewProducer(id, bus, nil, outputlog.New())

	var target = flowtype.ActorId{Node: "j", Channel: 0}
	require.NoError(t, p.AppendToTargets(ctx, target.Node, map[int]string{0: "local://j-0"}, flowtype.PartitionSpec{}))

	for i := 0; i < 3; i++ {
		_, err := p.Push(ctx, flowtype.Batch{Rows: []flowtype.Row{{"i": i}}})
		require.NoError(t, err)
	}

	payloadCh, err := bus.SubscribePayload(ctx, target)
	require.NoError(t, err)
	metaCh, err := bus.SubscribeMetadata(ctx, target)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		<-payloadCh // drain the live pushes
		<-metaCh
	}

	require.NoError(t, p.HelpDownstreamRecover(ctx, target, 1))

	var seqs []uint64
	for i := 0; i < 2; i++ {
		<-payloadCh
		seqs = append(seqs, (<-metaCh).Seq)
	}
	require.Equal(t, []uint64{2, 3}, seqs)
}

func TestProducerTruncateLoggedOutputsDelegatesToLog(t *testing.T) {
	var ctx = context.Background()
	var bus = inmembus.New()
	var id = flowtype.ActorId{Node: "m", Channel: 0}
	var p = NewProducer(id, bus, nil, outputlog.New())

	var target = flowtype.ActorId{Node: "j", Channel: 0}
	p.OutputLog().RegisterTarget(target)
	require.NoError(t, p.AppendToTargets(ctx, target.Node, map[int]string{0: "local://j-0"}, flowtype.PartitionSpec{}))

	for i := 0; i < 3; i++ {
		_, err := p.Push(ctx, flowtype.Batch{})
		require.NoError(t, err)
	}
	require.NoError(t, p.TruncateLoggedOutputs(ctx, target, 3))
	require.Equal(t, 1, p.OutputLog().Len(), "new_min (seq 3) itself is retained")
}
