package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/estuary/flowcore/internal/dataset"
	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/function"
	"github.com/estuary/flowcore/internal/dataset/memoutput"
	"github.com/estuary/flowcore/internal/rpc/localrpc"
	"github.com/estuary/flowcore/internal/store/memstore"
	"github.com/estuary/flowcore/internal/transport/inmembus"
)

// fixedReader replays a single fixed batch, then reports exhaustion. It
// implements both dataset.Reader and dataset.ReaderFactory.
type fixedReader struct {
	rows []flowtype.Row
	done bool
}

func (r *fixedReader) Open(context.Context, int, int, string) (dataset.Reader, error) { return r, nil }

func (r *fixedReader) Next(context.Context) (string, flowtype.Batch, bool, error) {
	if r.done {
		return "", flowtype.Batch{}, false, nil
	}
	r.done = true
	return "end", flowtype.Batch{Rows: r.rows}, true, nil
}

func (r *fixedReader) Close() error { return nil }

// waitForActor polls until id has finished under rt, or fails the test
// after a generous deadline — avoiding a blocking Wait() hanging the whole
// suite if the topology wiring is wrong.
func waitForActor(t *testing.T, rt *Runtime, id flowtype.ActorId) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- rt.Wait(id) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("actor %s did not finish in time", id)
		return nil
	}
}

func TestHappyPathInputTaskSink(t *testing.T) {
	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	var rt = NewRuntime()

	var inputId = flowtype.ActorId{Node: "in", Channel: 0}
	var taskId = flowtype.ActorId{Node: "j", Channel: 0}
	var sinkId = flowtype.ActorId{Node: "s", Channel: 0}

	var reader = &fixedReader{rows: []flowtype.Row{{"v": 1}, {"v": 2}, {"v": 3}}}
	var checkpointsIn = memstore.NewCheckpoints()
	var input, err = NewInputActor(ctx, inputId, 1, rt.Bus, rt.Registry, reader, checkpointsIn, 1000, nil)
	require.NoError(t, err)

	require.NoError(t, input.AppendToTargets(ctx, "j", map[int]string{0: localrpc.Address(taskId)}, flowtype.PartitionSpec{}))

	var stateTagLog = memstore.NewStateTagLog()
	var checkpointsTask = memstore.NewCheckpoints()
	task, err := NewTaskActor(ctx, taskId, rt.Bus, rt.Registry, stateTagLog, checkpointsTask, 1000,
		map[flowtype.NodeId]map[int]string{"in": {0: localrpc.Address(inputId)}}, function.Identity{})
	require.NoError(t, err)
	require.NoError(t, task.AppendToTargets(ctx, "s", map[int]string{0: localrpc.Address(sinkId)}, flowtype.PartitionSpec{}))

	var out = memoutput.New()
	var checkpointsSink = memstore.NewCheckpoints()
	var sinkStateTagLog = memstore.NewStateTagLog()
	sink, err := NewSinkActor(ctx, sinkId, rt.Bus, rt.Registry, sinkStateTagLog, checkpointsSink, 1000,
		map[flowtype.NodeId]map[int]string{"j": {0: localrpc.Address(taskId)}}, function.Identity{}, "host-a", out)
	require.NoError(t, err)

	rt.Spawn(ctx, sinkId, sink)
	rt.Spawn(ctx, taskId, task)
	rt.Spawn(ctx, inputId, input)

	require.NoError(t, waitForActor(t, rt, inputId))
	require.NoError(t, waitForActor(t, rt, taskId))
	require.NoError(t, waitForActor(t, rt, sinkId))

	var rows = out.Rows()
	require.Len(t, rows, 3)
}
