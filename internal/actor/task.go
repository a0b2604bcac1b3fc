package actor

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/estuary/flowcore/internal/flowerr"
	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/function"
	"github.com/estuary/flowcore/internal/metrics"
	"github.com/estuary/flowcore/internal/outputlog"
	"github.com/estuary/flowcore/internal/rpc"
	"github.com/estuary/flowcore/internal/store"
	"github.com/estuary/flowcore/internal/transport"
)

// TaskActor is a non-blocking task: it has both parents and children, and
// wraps a user function.Object, per spec.md §4.5.
type TaskActor struct {
	*Producer
	*Consumer

	id  flowtype.ActorId
	fn  function.Object
	bus transport.Bus

	checkpoints     store.Checkpoints
	stateTagLog     store.StateTagLog
	checkpointEvery int

	recovered bool
	state     State
}

// NewTaskActor constructs a TaskActor, restoring from checkpoints and the
// StateTagLog when a prior checkpoint exists (RECOVERING per spec.md
// §4.7), or initializing fn fresh otherwise (BOOTING).
func NewTaskActor(
	ctx context.Context,
	id flowtype.ActorId,
	bus transport.Bus,
	dialer rpc.PeerDialer,
	stateTagLog store.StateTagLog,
	checkpoints store.Checkpoints,
	checkpointEvery int,
	parents map[flowtype.NodeId]map[int]string,
	fn function.Object,
) (*TaskActor, error) {
	cp, ok, err := checkpoints.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var outLog *outputlog.Log
	currentTag := flowtype.StateTag{}
	latestInput := flowtype.StateTag{}

	if ok {
		outLog = outputlog.Restore(cp.OutputLog, cp.TargetOutputState, cp.OutSeq)
		currentTag = cp.StateTag
		latestInput = cp.LatestInputReceived
		if err := fn.Deserialize(cp.FunctionState); err != nil {
			return nil, err
		}
	} else {
		outLog = outputlog.New()
		if err := fn.Initialize(id.Channel); err != nil {
			return nil, err
		}
	}

	producer := NewProducer(id, bus, dialer, outLog)
	consumer, err := NewConsumer(ctx, id, bus, dialer, stateTagLog, parents, currentTag, latestInput)
	if err != nil {
		return nil, err
	}

	if ok {
		path, err := stateTagLog.Range(ctx, id)
		if err != nil {
			return nil, err
		}
		consumer.LoadExpectedPath(path)
	}

	state := Booting
	if ok {
		state = Recovering
	}

	return &TaskActor{
		Producer:        producer,
		Consumer:        consumer,
		id:              id,
		fn:              fn,
		bus:             bus,
		checkpoints:     checkpoints,
		stateTagLog:     stateTagLog,
		checkpointEvery: checkpointEvery,
		recovered:       ok,
		state:           state,
	}, nil
}

func (t *TaskActor) checkpoint(ctx context.Context) {
	fnState, err := t.fn.Serialize()
	if err != nil {
		log.WithError(err).WithField("actor", t.id).Error("serializing function state for checkpoint")
		return
	}

	entries, target, outSeq := t.OutputLog().Snapshot()
	tag := t.StateTag()

	cp := flowtype.Checkpoint{
		StateTag:            tag,
		LatestInputReceived: t.LatestInputReceived(),
		OutSeq:              outSeq,
		OutputLog:           entries,
		TargetOutputState:   target,
		FunctionState:       fnState,
	}

	if err := t.checkpoints.Put(ctx, t.id, cp); err != nil {
		metrics.CheckpointWriteErrorsTotal.WithLabelValues(string(t.id.Node), t.id.String()).Inc()
		log.WithError(err).WithField("actor", t.id).Error("task actor checkpoint failed")
		return
	}
	metrics.CheckpointsTotal.WithLabelValues(string(t.id.Node), t.id.String()).Inc()

	if err := t.TruncateStateTagLog(ctx, tag); err != nil {
		log.WithError(err).WithField("actor", t.id).Warn("truncating own state tag log")
	}

	for node, channels := range t.Consumer.Parents() {
		for channel, address := range channels {
			edge := flowtype.EdgeId{ParentNode: node, ParentChannel: channel}
			peer, err := t.Consumer.dialer.Peer(address)
			if err != nil {
				continue // dead parent: a restart will recompute its own cursor
			}
			target := flowtype.ActorId{Node: t.id.Node, Channel: t.id.Channel}
			if err := peer.TruncateLoggedOutputs(ctx, target, uint64(tag[edge])); err != nil {
				log.WithError(err).WithField("parent", address).Warn("truncate_logged_outputs call failed")
			} else {
				metrics.TruncationsTotal.WithLabelValues(string(node), edge.String()).Inc()
			}
		}
	}
}

// Execute runs the non-blocking task actor's full lifecycle.
func (t *TaskActor) Execute(ctx context.Context) error {
	if t.recovered {
		if err := t.AskUpstreamForHelp(ctx); err != nil {
			return err
		}
	}

	t.state = Running
	metrics.ActorState.WithLabelValues(string(t.id.Node), t.id.String(), Running.String()).Set(1)

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		decision, err := t.Consumer.Next()
		if err != nil {
			if tiv, ok := err.(*flowerr.TopologyInvariantViolation); ok {
				return tiv
			}
			return err
		}

		if decision.Empty {
			if t.Consumer.Idle() {
				break
			}
			time.Sleep(pollInterval)
			continue
		}

		results, err := t.fn.Apply(decision.Edge.ParentNode, decision.Batch)
		if err != nil {
			return err
		}

		diedOut := false
		for _, batch := range results {
			alive, err := t.Push(ctx, batch)
			if err != nil {
				return err
			}
			if !alive {
				diedOut = true
				break
			}
		}
		if diedOut {
			break
		}

		count++
		if count%t.checkpointEvery == 0 {
			t.checkpoint(ctx)
		}
	}

	t.state = Draining
	metrics.ActorState.WithLabelValues(string(t.id.Node), t.id.String(), Draining.String()).Set(1)

	final, err := t.fn.Done(t.id.Channel)
	if err != nil {
		return err
	}
	for _, batch := range final {
		if _, err := t.Push(ctx, batch); err != nil {
			return err
		}
	}
	if _, err := t.PushDone(ctx); err != nil {
		return err
	}
	if err := t.AnnounceDone(ctx); err != nil {
		return err
	}

	t.state = Done
	metrics.ActorState.WithLabelValues(string(t.id.Node), t.id.String(), Done.String()).Set(1)
	return nil
}
