package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/flowcore/internal/flowtype"
)

func TestStateTagLogAppendAndRange(t *testing.T) {
	var ctx = context.Background()
	var l = NewStateTagLog()
	var id = flowtype.ActorId{Node: "j", Channel: 0}
	var edge = flowtype.EdgeId{ParentNode: "a", ParentChannel: 0}

	require.NoError(t, l.Append(ctx, id, flowtype.StateTag{edge: 1}))
	require.NoError(t, l.Append(ctx, id, flowtype.StateTag{edge: 2}))

	got, err := l.Range(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0][edge])
	require.Equal(t, 2, got[1][edge])
}

func TestStateTagLogTruncateDiscardsThroughMatch(t *testing.T) {
	var ctx = context.Background()
	var l = NewStateTagLog()
	var id = flowtype.ActorId{Node: "j", Channel: 0}
	var edge = flowtype.EdgeId{ParentNode: "a", ParentChannel: 0}

	require.NoError(t, l.Append(ctx, id, flowtype.StateTag{edge: 1}))
	require.NoError(t, l.Append(ctx, id, flowtype.StateTag{edge: 2}))
	require.NoError(t, l.Append(ctx, id, flowtype.StateTag{edge: 3}))

	require.NoError(t, l.Truncate(ctx, id, flowtype.StateTag{edge: 2}))

	got, err := l.Range(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 3, got[0][edge])
}

func TestStateTagLogPrefixStability(t *testing.T) {
	// Snapshots logged before a crash must equal, in order, the first k
	// snapshots logged after recovery.
	var ctx = context.Background()
	var id = flowtype.ActorId{Node: "j", Channel: 0}
	var edge = flowtype.EdgeId{ParentNode: "a", ParentChannel: 0}

	var before = NewStateTagLog()
	require.NoError(t, before.Append(ctx, id, flowtype.StateTag{edge: 1}))
	require.NoError(t, before.Append(ctx, id, flowtype.StateTag{edge: 2}))
	preCrash, err := before.Range(ctx, id)
	require.NoError(t, err)

	// Recovery re-opens the same durable log and appends further entries.
	require.NoError(t, before.Append(ctx, id, flowtype.StateTag{edge: 3}))
	postRecovery, err := before.Range(ctx, id)
	require.NoError(t, err)

	require.Len(t, postRecovery, 3)
	for i := range preCrash {
		require.True(t, preCrash[i].Equal(postRecovery[i]))
	}
}

func TestCheckpointsGetMissingReturnsNotOK(t *testing.T) {
	var c = NewCheckpoints()
	_, ok, err := c.Get(context.Background(), flowtype.ActorId{Node: "j", Channel: 0})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckpointsPutThenGet(t *testing.T) {
	var ctx = context.Background()
	var c = NewCheckpoints()
	var id = flowtype.ActorId{Node: "j", Channel: 0}
	var cp = flowtype.Checkpoint{OutSeq: 7}

	require.NoError(t, c.Put(ctx, id, cp))
	got, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), got.OutSeq)
}
