// Package metrics holds the prometheus instruments every actor reports
// against: package-level promauto vars, label-carrying vectors, a
// flowcore_ name prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CheckpointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flowcore_checkpoints_total",
	Help: "counter of checkpoints successfully written by an actor",
}, []string{"node", "channel"})

var CheckpointWriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flowcore_checkpoint_write_errors_total",
	Help: "counter of checkpoint writes that failed",
}, []string{"node", "channel"})

var TruncationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flowcore_truncations_total",
	Help: "counter of OutputLog truncations applied by a producer",
}, []string{"node", "channel"})

var HelpRecoverServedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flowcore_help_recover_served_total",
	Help: "counter of help_downstream_recover calls served by a producer",
}, []string{"node", "channel"})

var AdmissionDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flowcore_admission_dropped_total",
	Help: "counter of envelopes dropped by the admission filter, by reason",
}, []string{"node", "channel", "reason"})

var OutputLogLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "flowcore_output_log_length",
	Help: "number of retained entries in a producer's OutputLog",
}, []string{"node", "channel"})

var BufferedInputsLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "flowcore_buffered_inputs_length",
	Help: "number of batches buffered for one incoming edge",
}, []string{"node", "channel", "parent_node", "parent_channel"})

var ActorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "flowcore_actor_state",
	Help: "1 for the actor's current lifecycle state, by state label",
}, []string{"node", "channel", "state"})
