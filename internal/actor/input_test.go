package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/store/memstore"
	"github.com/estuary/flowcore/internal/transport/inmembus"
)

func TestInputActorWaitsForDependentParallelism(t *testing.T) {
	var ctx = context.Background()
	var bus = inmembus.New()
	var id = flowtype.ActorId{Node: "b", Channel: 0}

	var reader = &fixedReader{rows: []flowtype.Row{{"v": 1}}}
	input, err := NewInputActor(ctx, id, 1, bus, nil, reader, memstore.NewCheckpoints(), 1000,
		map[flowtype.NodeId]int{"a": 2})
	require.NoError(t, err)

	waitDone := make(chan error, 1)
	go func() { waitDone <- input.waitForDependencies(ctx) }()

	select {
	case <-waitDone:
		t.Fatal("should not return before both dependency signals arrive")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, bus.PublishInputDone(ctx, "a"))
	select {
	case <-waitDone:
		t.Fatal("should not return after only one of two signals")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, bus.PublishInputDone(ctx, "a"))
	select {
	case err := <-waitDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waitForDependencies did not return after both signals arrived")
	}
}

func TestInputActorCheckpointThenRecoverResumesPosition(t *testing.T) {
	var ctx = context.Background()
	var bus = inmembus.New()
	var id = flowtype.ActorId{Node: "in", Channel: 0}
	var checkpoints = memstore.NewCheckpoints()

	var reader = &fixedReader{rows: []flowtype.Row{{"v": 1}}}
	input, err := NewInputActor(ctx, id, 1, bus, nil, reader, checkpoints, 1000, nil)
	require.NoError(t, err)

	input.position = "row-42"
	input.checkpoint(ctx)

	var reader2 = &fixedReader{rows: []flowtype.Row{{"v": 2}}}
	recovered, err := NewInputActor(ctx, id, 1, bus, nil, reader2, checkpoints, 1000, nil)
	require.NoError(t, err)
	require.Equal(t, "row-42", recovered.position)
}
