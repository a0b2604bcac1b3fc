package actor

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/estuary/flowcore/internal/dataset"
	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/metrics"
	"github.com/estuary/flowcore/internal/outputlog"
	"github.com/estuary/flowcore/internal/rpc"
	"github.com/estuary/flowcore/internal/store"
	"github.com/estuary/flowcore/internal/transport"
)

// pollInterval is how often a civil, non-blocking wait loop re-checks its
// condition, per spec.md §5's suspension-point guidance.
const pollInterval = 2 * time.Millisecond

// InputActor has no parents: it is fully replayable from an external
// dataset's resumable position, so it carries no StateTagLog/expected_path
// (spec.md §4.6). It embeds Producer for push/recovery-serving and wraps a
// dataset.Reader for its own iteration.
type InputActor struct {
	*Producer

	id          flowtype.ActorId
	numChannels int

	reader  dataset.Reader
	factory dataset.ReaderFactory

	bus transport.Bus

	checkpoints     store.Checkpoints
	checkpointEvery int

	// dependentParallelism names the upstream input nodes this actor must
	// wait on before it starts, and how many channels (parallelism) each
	// one runs, per spec.md §4.6.
	dependentParallelism map[flowtype.NodeId]int

	position string
	state    State
}

// NewInputActor constructs an InputActor for id, restoring from
// checkpoints if a prior checkpoint exists.
func NewInputActor(
	ctx context.Context,
	id flowtype.ActorId,
	numChannels int,
	bus transport.Bus,
	dialer rpc.PeerDialer,
	factory dataset.ReaderFactory,
	checkpoints store.Checkpoints,
	checkpointEvery int,
	dependentParallelism map[flowtype.NodeId]int,
) (*InputActor, error) {
	var outLog *outputlog.Log
	var resumeFrom string
	state := Booting

	cp, ok, err := checkpoints.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		outLog = outputlog.Restore(cp.OutputLog, cp.TargetOutputState, cp.OutSeq)
		resumeFrom = cp.InputPosition
		state = Recovering
	} else {
		outLog = outputlog.New()
	}

	reader, err := factory.Open(ctx, id.Channel, numChannels, resumeFrom)
	if err != nil {
		return nil, err
	}

	return &InputActor{
		Producer:             NewProducer(id, bus, dialer, outLog),
		id:                   id,
		numChannels:          numChannels,
		reader:               reader,
		factory:              factory,
		bus:                  bus,
		checkpoints:          checkpoints,
		checkpointEvery:      checkpointEvery,
		dependentParallelism: dependentParallelism,
		position:             resumeFrom,
		state:                state,
	}, nil
}

// waitForDependencies blocks until every named dependent input node has
// announced "done" exactly dependentParallelism[node] times, per spec.md
// §4.6.
func (a *InputActor) waitForDependencies(ctx context.Context) error {
	if len(a.dependentParallelism) == 0 {
		return nil
	}

	remaining := make(map[flowtype.NodeId]int, len(a.dependentParallelism))
	chans := make(map[flowtype.NodeId]<-chan struct{}, len(a.dependentParallelism))
	for node, n := range a.dependentParallelism {
		remaining[node] = n
		ch, err := a.bus.SubscribeInputDone(ctx, node)
		if err != nil {
			return err
		}
		chans[node] = ch
	}

	for len(remaining) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		progressed := false
		for node, ch := range chans {
			select {
			case <-ch:
				remaining[node]--
				progressed = true
				if remaining[node] <= 0 {
					delete(remaining, node)
					delete(chans, node)
				}
			default:
			}
		}
		if !progressed {
			time.Sleep(pollInterval)
		}
	}
	return nil
}

func (a *InputActor) checkpoint(ctx context.Context) {
	entries, target, outSeq := a.OutputLog().Snapshot()
	cp := flowtype.Checkpoint{
		OutSeq:            outSeq,
		OutputLog:         entries,
		TargetOutputState: target,
		InputPosition:     a.position,
	}
	if err := a.checkpoints.Put(ctx, a.id, cp); err != nil {
		metrics.CheckpointWriteErrorsTotal.WithLabelValues(string(a.id.Node), a.id.String()).Inc()
		log.WithError(err).WithField("actor", a.id).Error("input actor checkpoint failed")
		return
	}
	metrics.CheckpointsTotal.WithLabelValues(string(a.id.Node), a.id.String()).Inc()
}

// Execute runs the input actor's full lifecycle: wait for dependencies,
// stream the dataset to completion, then drain and announce done.
func (a *InputActor) Execute(ctx context.Context) error {
	if err := a.waitForDependencies(ctx); err != nil {
		return err
	}

	a.state = Running
	metrics.ActorState.WithLabelValues(string(a.id.Node), a.id.String(), Running.String()).Set(1)

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		position, batch, ok, err := a.reader.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		a.position = position

		alive, err := a.Push(ctx, batch)
		if err != nil {
			return err
		}

		count++
		if count%a.checkpointEvery == 0 {
			a.checkpoint(ctx)
		}
		if !alive {
			break
		}
	}

	a.state = Draining
	metrics.ActorState.WithLabelValues(string(a.id.Node), a.id.String(), Draining.String()).Set(1)

	if _, err := a.PushDone(ctx); err != nil {
		return err
	}
	if err := a.AnnounceDone(ctx); err != nil {
		return err
	}
	if err := a.bus.PublishInputDone(ctx, a.id.Node); err != nil {
		return err
	}
	if err := a.reader.Close(); err != nil {
		log.WithError(err).WithField("actor", a.id).Warn("closing input reader")
	}

	a.state = Done
	metrics.ActorState.WithLabelValues(string(a.id.Node), a.id.String(), Done.String()).Set(1)
	return nil
}
