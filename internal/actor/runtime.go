package actor

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/estuary/flowcore/internal/flowtype"
	"github.com/estuary/flowcore/internal/rpc"
	"github.com/estuary/flowcore/internal/rpc/localrpc"
	"github.com/estuary/flowcore/internal/transport/inmembus"
)

// Runtime is a single-process supervisor for a topology of actors, used by
// the demo driver and by fault-injection tests that need to "kill" and
// "restart" an actor the way spec.md §8's scenarios do, without a real
// cluster. It wires every actor to the same inmembus.Bus and
// localrpc.Registry, so AppendToTargets/HelpDownstreamRecover/etc. flow
// through the exact code paths a distributed deployment would use, minus
// the network.
type Runtime struct {
	Bus      *inmembus.Bus
	Registry *localrpc.Registry

	mu      sync.Mutex
	cancels map[flowtype.ActorId]context.CancelFunc
	results map[flowtype.ActorId]chan error
}

// NewRuntime returns a Runtime with a fresh Bus and Registry.
func NewRuntime() *Runtime {
	return &Runtime{
		Bus:      inmembus.New(),
		Registry: localrpc.NewRegistry(),
		cancels:  make(map[flowtype.ActorId]context.CancelFunc),
		results:  make(map[flowtype.ActorId]chan error),
	}
}

// Spawn registers server at id's canonical address and runs its Execute
// loop on a new goroutine, under a context this Runtime controls.
func (r *Runtime) Spawn(ctx context.Context, id flowtype.ActorId, server rpc.ActorServer) {
	actorCtx, cancel := context.WithCancel(ctx)
	result := make(chan error, 1)

	r.mu.Lock()
	r.cancels[id] = cancel
	r.results[id] = result
	r.mu.Unlock()

	r.Registry.Register(id, server)

	go func() {
		err := server.Execute(actorCtx)
		if err != nil {
			log.WithError(err).WithField("actor", id).Warn("actor execute returned error")
		}
		result <- err
	}()
}

// Kill simulates a process crash: the actor's context is cancelled and it
// is deregistered, so any peer still routing to it starts seeing
// localrpc.ErrUnreachable, exactly as a dead remote peer would in a real
// deployment. Kill does not wait for the goroutine to exit.
func (r *Runtime) Kill(id flowtype.ActorId) {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	delete(r.cancels, id)
	delete(r.results, id)
	r.mu.Unlock()

	r.Registry.Deregister(id)
	if ok {
		cancel()
	}
}

// Wait blocks until id's Execute call returns, and reports its error.
func (r *Runtime) Wait(id flowtype.ActorId) error {
	r.mu.Lock()
	result, ok := r.results[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("actor %s is not running under this runtime", id)
	}
	return <-result
}

// Restart kills id if still running, then builds and spawns a replacement
// via rebuild — typically a closure that constructs a fresh InputActor,
// TaskActor, or SinkActor from its checkpoint store, exactly as
// spec.md §4.7's "controller restarts the actor with a ckpt handle"
// describes.
func (r *Runtime) Restart(ctx context.Context, id flowtype.ActorId, rebuild func() (rpc.ActorServer, error)) error {
	r.Kill(id)

	server, err := rebuild()
	if err != nil {
		return err
	}
	r.Spawn(ctx, id, server)
	return nil
}
