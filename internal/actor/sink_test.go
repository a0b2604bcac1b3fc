package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/flowcore/internal/dataset/memoutput"
	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/function"
	"github.com/estuary/flowcore/internal/rpc"
	"github.com/estuary/flowcore/internal/store/memstore"
	"github.com/estuary/flowcore/internal/transport/inmembus"
)

func TestSinkActorRejectsAllProducerRPCs(t *testing.T) {
	var ctx = context.Background()
	var bus = inmembus.New()
	var id = flowtype.ActorId{Node: "s", Channel: 0}

	sink, err := NewSinkActor(ctx, id, bus, nil, memstore.NewStateTagLog(), memstore.NewCheckpoints(), 1000, nil, function.Identity{}, "host", memoutput.New())
	require.NoError(t, err)

	require.ErrorIs(t, sink.AppendToTargets(ctx, "x", nil, flowtype.PartitionSpec{}), rpc.ErrSinkRejectsTargets{})
	require.ErrorIs(t, sink.UpdateTargetIP(ctx, flowtype.ActorId{}, ""), rpc.ErrSinkRejectsTargets{})
	require.ErrorIs(t, sink.UpdateTargetIPAndHelpRecover(ctx, flowtype.ActorId{}, 0, ""), rpc.ErrSinkRejectsTargets{})
	require.ErrorIs(t, sink.HelpDownstreamRecover(ctx, flowtype.ActorId{}, 0), rpc.ErrSinkRejectsTargets{})
	require.ErrorIs(t, sink.TruncateLoggedOutputs(ctx, flowtype.ActorId{}, 0), rpc.ErrSinkRejectsTargets{})
}

func TestSinkActorCheckpointCarriesObjectCountAsOutSeq(t *testing.T) {
	var ctx = context.Background()
	var bus = inmembus.New()
	var id = flowtype.ActorId{Node: "s", Channel: 0}
	var checkpoints = memstore.NewCheckpoints()
	var out = memoutput.New()

	sink, err := NewSinkActor(ctx, id, bus, nil, memstore.NewStateTagLog(), checkpoints, 1000, nil, function.Identity{}, "host", out)
	require.NoError(t, err)

	require.NoError(t, sink.write(ctx, flowtype.Batch{Rows: []flowtype.Row{{"a": 1}}}))
	require.NoError(t, sink.write(ctx, flowtype.Batch{Rows: []flowtype.Row{{"a": 2}}}))
	sink.checkpoint(ctx)

	cp, ok, err := checkpoints.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), cp.OutSeq)
}
