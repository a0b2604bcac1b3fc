package actor

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/estuary/flowcore/internal/dataset"
	"github.com/estuary/flowcore/internal/flowerr"
	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/function"
	"github.com/estuary/flowcore/internal/metrics"
	"github.com/estuary/flowcore/internal/rpc"
	"github.com/estuary/flowcore/internal/store"
	"github.com/estuary/flowcore/internal/transport"
)

// SinkActor is a blocking sink: it has parents but no outgoing edges, per
// spec.md §4.8. It embeds Consumer for the admission/scheduler/recovery
// machinery, and writes results to an external dataset.Output instead of
// pushing downstream.
type SinkActor struct {
	*Consumer

	id   flowtype.ActorId
	fn   function.Object
	host string
	out  dataset.Output

	checkpoints     store.Checkpoints
	stateTagLog     store.StateTagLog
	checkpointEvery int

	objectCount int
	recovered   bool
	state       State
}

// NewSinkActor constructs a SinkActor, mirroring NewTaskActor's recovery
// path but with no OutputLog of its own (a sink has no consumers to
// resend to).
func NewSinkActor(
	ctx context.Context,
	id flowtype.ActorId,
	bus transport.Bus,
	dialer rpc.PeerDialer,
	stateTagLog store.StateTagLog,
	checkpoints store.Checkpoints,
	checkpointEvery int,
	parents map[flowtype.NodeId]map[int]string,
	fn function.Object,
	host string,
	out dataset.Output,
) (*SinkActor, error) {
	cp, ok, err := checkpoints.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	currentTag := flowtype.StateTag{}
	latestInput := flowtype.StateTag{}
	objectCount := 0

	if ok {
		currentTag = cp.StateTag
		latestInput = cp.LatestInputReceived
		if err := fn.Deserialize(cp.FunctionState); err != nil {
			return nil, err
		}
		objectCount = int(cp.OutSeq)
	} else {
		if err := fn.Initialize(id.Channel); err != nil {
			return nil, err
		}
	}

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

	return &SinkActor{
		Consumer:        consumer,
		id:              id,
		fn:              fn,
		host:            host,
		out:             out,
		checkpoints:     checkpoints,
		stateTagLog:     stateTagLog,
		checkpointEvery: checkpointEvery,
		objectCount:     objectCount,
		recovered:       ok,
		state:           state,
	}, nil
}

// AppendToTargets always fails: a blocking sink has no outgoing edges, per
// spec.md §4.8.
func (s *SinkActor) AppendToTargets(context.Context, flowtype.NodeId, map[int]string, flowtype.PartitionSpec) error {
	return rpc.ErrSinkRejectsTargets{}
}

// UpdateTargetIP is unreachable since AppendToTargets always fails, but is
// still required to satisfy rpc.ActorServer.
func (s *SinkActor) UpdateTargetIP(context.Context, flowtype.ActorId, string) error {
	return rpc.ErrSinkRejectsTargets{}
}

// UpdateTargetIPAndHelpRecover is unreachable for the same reason.
func (s *SinkActor) UpdateTargetIPAndHelpRecover(context.Context, flowtype.ActorId, uint64, string) error {
	return rpc.ErrSinkRejectsTargets{}
}

// HelpDownstreamRecover is unreachable: nothing downstream can ever have
// registered.
func (s *SinkActor) HelpDownstreamRecover(context.Context, flowtype.ActorId, uint64) error {
	return rpc.ErrSinkRejectsTargets{}
}

// TruncateLoggedOutputs is unreachable for the same reason.
func (s *SinkActor) TruncateLoggedOutputs(context.Context, flowtype.ActorId, uint64) error {
	return rpc.ErrSinkRejectsTargets{}
}

func (s *SinkActor) write(ctx context.Context, batch flowtype.Batch) error {
	key, size, err := s.out.Put(ctx, s.id.Node, s.id.Channel, s.objectCount, batch)
	if err != nil {
		return err
	}
	s.objectCount++
	return s.out.Notify(ctx, s.host, key, size)
}

func (s *SinkActor) checkpoint(ctx context.Context) {
	fnState, err := s.fn.Serialize()
	if err != nil {
		log.WithError(err).WithField("actor", s.id).Error("serializing function state for checkpoint")
		return
	}

	tag := s.StateTag()
	cp := flowtype.Checkpoint{
		StateTag:            tag,
		LatestInputReceived: s.LatestInputReceived(),
		OutSeq:              uint64(s.objectCount),
		FunctionState:       fnState,
	}

	if err := s.checkpoints.Put(ctx, s.id, cp); err != nil {
		metrics.CheckpointWriteErrorsTotal.WithLabelValues(string(s.id.Node), s.id.String()).Inc()
		log.WithError(err).WithField("actor", s.id).Error("sink actor checkpoint failed")
		return
	}
	metrics.CheckpointsTotal.WithLabelValues(string(s.id.Node), s.id.String()).Inc()

	if err := s.TruncateStateTagLog(ctx, tag); err != nil {
		log.WithError(err).WithField("actor", s.id).Warn("truncating own state tag log")
	}

	for node, channels := range s.Consumer.Parents() {
		for channel, address := range channels {
			edge := flowtype.EdgeId{ParentNode: node, ParentChannel: channel}
			peer, err := s.Consumer.dialer.Peer(address)
			if err != nil {
				continue
			}
			target := flowtype.ActorId{Node: s.id.Node, Channel: s.id.Channel}
			if err := peer.TruncateLoggedOutputs(ctx, target, uint64(tag[edge])); err != nil {
				log.WithError(err).WithField("parent", address).Warn("truncate_logged_outputs call failed")
			} else {
				metrics.TruncationsTotal.WithLabelValues(string(node), edge.String()).Inc()
			}
		}
	}
}

// Execute runs the blocking sink actor's full lifecycle.
func (s *SinkActor) Execute(ctx context.Context) error {
	if s.recovered {
		if err := s.AskUpstreamForHelp(ctx); err != nil {
			return err
		}
	}

	s.state = Running
	metrics.ActorState.WithLabelValues(string(s.id.Node), s.id.String(), Running.String()).Set(1)

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		decision, err := s.Consumer.Next()
		if err != nil {
			if tiv, ok := err.(*flowerr.TopologyInvariantViolation); ok {
				return tiv
			}
			return err
		}

		if decision.Empty {
			if s.Consumer.Idle() {
				break
			}
			time.Sleep(pollInterval)
			continue
		}

		results, err := s.fn.Apply(decision.Edge.ParentNode, decision.Batch)
		if err != nil {
			return err
		}
		for _, batch := range results {
			if err := s.write(ctx, batch); err != nil {
				return err
			}
		}

		count++
		if count%s.checkpointEvery == 0 {
			s.checkpoint(ctx)
		}
	}

	s.state = Draining
	metrics.ActorState.WithLabelValues(string(s.id.Node), s.id.String(), Draining.String()).Set(1)

	final, err := s.fn.Done(s.id.Channel)
	if err != nil {
		return err
	}
	for _, batch := range final {
		if err := s.write(ctx, batch); err != nil {
			return err
		}
	}
	if err := s.bus.PublishNodeDone(ctx, s.id.Node, s.id.Channel); err != nil {
		return err
	}

	s.state = Done
	metrics.ActorState.WithLabelValues(string(s.id.Node), s.id.String(), Done.String()).Set(1)
	return nil
}
