// Package rpc defines ActorServer, the actor RPC surface spec.md §6
// enumerates: the handlers a producer actor exposes to its downstream
// peers (append_to_targets, update_target_ip[_and_help_recover],
// help_downstream_recover, truncate_logged_outputs) plus the controller
// entry point execute(). Two transports implement it: localrpc (direct
// in-process dispatch, used by the demo and tests) and grpcrpc (a real
// network transport for a distributed deployment).
package rpc

import (
	"context"

	"github.com/estuary/flowcore/internal/flowtype"
)

// ActorServer is implemented by every actor that can have downstream
// targets (input and non-blocking task actors). Blocking sink actors also
// implement it, but AppendToTargets always fails per spec.md §4.8.
type ActorServer interface {
	// AppendToTargets registers a new downstream edge: target is the
	// consuming node, channelToAddress maps each of its channels to a
	// routable address, and partition selects how a pushed batch is split
	// across those channels.
	AppendToTargets(ctx context.Context, target flowtype.NodeId, channelToAddress map[int]string, partition flowtype.PartitionSpec) error

	// UpdateTargetIP re-routes a single (target node, channel) to a new
	// address, e.g. after the controller restarts it elsewhere.
	UpdateTargetIP(ctx context.Context, target flowtype.ActorId, newAddress string) error

	// UpdateTargetIPAndHelpRecover re-routes and then immediately resends
	// every logged output above consumerStateTag, combining UpdateTargetIP
	// and HelpDownstreamRecover in one call.
	UpdateTargetIPAndHelpRecover(ctx context.Context, target flowtype.ActorId, consumerStateTag uint64, newAddress string) error

	// HelpDownstreamRecover resends every OutputLog entry with
	// seq > consumerStateTag to target, in seq order, on both the payload
	// and metadata topics.
	HelpDownstreamRecover(ctx context.Context, target flowtype.ActorId, consumerStateTag uint64) error

	// TruncateLoggedOutputs authorises discarding OutputLog entries the
	// caller (target) has durably checkpointed past.
	TruncateLoggedOutputs(ctx context.Context, target flowtype.ActorId, newCursor uint64) error

	// Execute starts the actor's main loop and blocks until it reaches
	// DONE or ctx is cancelled.
	Execute(ctx context.Context) error
}

// PeerDialer resolves a routable address to the ActorServer reachable
// there. Producer and Consumer both depend only on this narrow interface,
// never on a concrete transport, so the same actor code runs unchanged
// against localrpc (tests, single-process demo) or grpcrpc (a real
// distributed deployment).
type PeerDialer interface {
	Peer(address string) (ActorServer, error)
}

// ErrSinkRejectsTargets is returned by a blocking sink actor's
// AppendToTargets, per spec.md §4.8: "append_to_targets MUST fail".
type ErrSinkRejectsTargets struct{}

func (ErrSinkRejectsTargets) Error() string {
	return "blocking sink actor rejects append_to_targets: it has no outgoing edges"
}
