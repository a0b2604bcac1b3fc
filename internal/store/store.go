// Package store defines the narrow, injected interfaces for the two
// durable collaborators spec.md §6 calls for: the StateTagLog
// (append/len/range/lpop over a per-actor reliable list) and the
// checkpoint artifact store (placement varies by actor kind). Concrete
// adaptors live in the etcdstore, filestore, and memstore subpackages.
package store

import (
	"context"
	"strconv"

	"github.com/estuary/flowcore/internal/flowtype"
)

// StateTagLog is the reliable, append-only per-actor list of StateTag
// snapshots chosen by the scheduler. The canonical key for a given actor
// is "state-tag-<node>-<channel>" (SPEC_FULL.md Open Question #3), built by
// KeyForStateTag; etcdstore keys on that string, while memstore keys its
// in-process map by the ActorId itself.
type StateTagLog interface {
	// Append adds tag to the end of the log for id.
	Append(ctx context.Context, id flowtype.ActorId, tag flowtype.StateTag) error
	// Range returns a copy of the full log for id, oldest first.
	Range(ctx context.Context, id flowtype.ActorId) ([]flowtype.StateTag, error)
	// Truncate discards every logged entry up to and including the first
	// one that equals upTo. Used after a successful checkpoint, per
	// spec.md §4.7.
	Truncate(ctx context.Context, id flowtype.ActorId, upTo flowtype.StateTag) error
}

// Checkpoints is the durable checkpoint artifact store. Placement differs
// by actor kind per spec.md §6: input actors use a local file with
// temp+rename, task/sink actors use an object-store (bucket, key) with a
// single atomic put. Both shapes satisfy this same narrow interface.
type Checkpoints interface {
	// Put durably writes cp for id, atomically replacing any prior
	// checkpoint. Implementations MUST NOT leave a half-written artifact
	// visible to a concurrent Get.
	Put(ctx context.Context, id flowtype.ActorId, cp flowtype.Checkpoint) error
	// Get loads the most recent checkpoint for id. ok is false if none
	// exists yet (a fresh actor, never checkpointed).
	Get(ctx context.Context, id flowtype.ActorId) (cp flowtype.Checkpoint, ok bool, err error)
}

// KeyForStateTag returns the canonical StateTagLog key for an actor. Every
// key-string-based adaptor (etcdstore) routes through this helper, so a
// single change point fixes SPEC_FULL.md Open Question #3 for all of them.
func KeyForStateTag(id flowtype.ActorId) string {
	return "state-tag-" + string(id.Node) + "-" + strconv.Itoa(id.Channel)
}
