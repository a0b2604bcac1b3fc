package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/function"
	"github.com/estuary/flowcore/internal/rpc/localrpc"
	"github.com/estuary/flowcore/internal/store/memstore"
	"github.com/estuary/flowcore/internal/transport/inmembus"
)

func TestTaskActorCheckpointThenRecoverRestoresOutputLog(t *testing.T) {
	var ctx = context.Background()
	var bus = inmembus.New()
	var dialer = localrpc.NewRegistry()
	var id = flowtype.ActorId{Node: "j", Channel: 0}
	var checkpoints = memstore.NewCheckpoints()
	var stateTagLog = memstore.NewStateTagLog()
	var parents = map[flowtype.NodeId]map[int]string{"a": {0: "local://a-0"}}

	task, err := NewTaskActor(ctx, id, bus, dialer, stateTagLog, checkpoints, 1000, parents, function.Identity{})
	require.NoError(t, err)
	require.False(t, task.recovered)

	task.OutputLog().RegisterTarget(flowtype.ActorId{Node: "s", Channel: 0})
	task.OutputLog().PushNext(flowtype.DataPayload(flowtype.Batch{Rows: []flowtype.Row{{"a": 1}}}))
	task.checkpoint(ctx)

	recovered, err := NewTaskActor(ctx, id, bus, dialer, stateTagLog, checkpoints, 1000, parents, function.Identity{})
	require.NoError(t, err)
	require.True(t, recovered.recovered)
	require.Equal(t, 1, recovered.OutputLog().Len())
}

func TestTaskActorBootingInitializesFunctionOnce(t *testing.T) {
	var ctx = context.Background()
	var bus = inmembus.New()
	var id = flowtype.ActorId{Node: "j", Channel: 2}

	var fn = &countingIdentity{}
	_, err := NewTaskActor(ctx, id, bus, nil, memstore.NewStateTagLog(), memstore.NewCheckpoints(), 1000, nil, fn)
	require.NoError(t, err)
	require.Equal(t, 1, fn.initCalls)
	require.Equal(t, 2, fn.initChannel)
}

// countingIdentity wraps function.Identity to record Initialize calls.
type countingIdentity struct {
	function.Identity
	initCalls   int
	initChannel int
}

func (c *countingIdentity) Initialize(channel int) error {
	c.initCalls++
	c.initChannel = channel
	return nil
}
