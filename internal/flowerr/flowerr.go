// Package flowerr defines the error taxonomy of spec.md §7, as typed Go
// errors rather than exceptions. Transport- and admission-level errors are
// logged and swallowed at the call site. A failed checkpoint write is
// logged by the actor, which then skips all truncation and tries again at
// its next checkpoint; a RecoveryPeerError is logged and retried until the
// actor's context ends; a TopologyInvariantViolation ends the actor's
// Execute with that error.
package flowerr

import "github.com/pkg/errors"

// TransientPublishError indicates a downstream publish reported the target
// unreachable. The caller abandons the publish for that target; the
// OutputLog retains the entry for a future resend_above.
type TransientPublishError struct {
	Target string
	Cause  error
}

func (e *TransientPublishError) Error() string {
	return errors.Wrapf(e.Cause, "publish to %s unreachable", e.Target).Error()
}

func (e *TransientPublishError) Unwrap() error { return e.Cause }

// DownstreamGone indicates every channel of a target has signalled
// node-done. The caller removes the target from routing and from
// TargetOutputState.
type DownstreamGone struct {
	Target string
}

func (e *DownstreamGone) Error() string {
	return "downstream target gone: " + e.Target
}

// CheckpointWriteError describes a failed checkpoint write. The actors'
// checkpoint methods log the underlying error rather than returning this
// type, and treat the checkpoint as not taken: no upstream truncate calls,
// no StateTagLog truncation.
type CheckpointWriteError struct {
	Cause error
}

func (e *CheckpointWriteError) Error() string {
	return errors.Wrap(e.Cause, "checkpoint write failed").Error()
}

func (e *CheckpointWriteError) Unwrap() error { return e.Cause }

// RecoveryPeerError indicates a parent asked for help during
// ask_upstream_for_help is itself dead. The asking actor logs it and keeps
// retrying; recovery cannot complete until the controller restarts that
// parent.
type RecoveryPeerError struct {
	Parent string
	Cause  error
}

func (e *RecoveryPeerError) Error() string {
	return errors.Wrapf(e.Cause, "recovery peer %s unavailable", e.Parent).Error()
}

func (e *RecoveryPeerError) Unwrap() error { return e.Cause }

// TopologyInvariantViolation indicates the scheduler found more than one
// strictly-positive component, or a negative component, in a replay-mode
// diff. It means a prior
// execution was non-deterministic or the StateTagLog is corrupt; it is
// always fatal.
type TopologyInvariantViolation struct {
	Detail string
}

func (e *TopologyInvariantViolation) Error() string {
	return "topology invariant violated: " + e.Detail
}

// DuplicateOrStaleArrival and FutureArrival are not represented as errors:
// per spec.md §7 they are silently dropped by the admission filter
// (internal/actor.admit). They are named here only for documentation
// parity with the taxonomy.
