// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for a device process, grounded on the teacher's
// coreengine/observability package (metrics.go's promauto Counter/
// HistogramVec pattern, tracing.go's OTLP/gRPC exporter wiring) with the
// instrumented surface replaced: pipeline/agent/LLM metrics become
// queue depth, dispatch outcome, continuation table size, and VM
// opcode execution counts — the things that actually vary during a
// reactive device's operation.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "devrt_queue_depth",
			Help: "Current number of items waiting in a bounded queue",
		},
		[]string{"queue"}, // queue: inbound, outbound, events
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devrt_dispatch_total",
			Help: "Total number of dispatched wire messages by tag and outcome",
		},
		[]string{"tag", "outcome"}, // outcome: handled, unhandled
	)

	continuationsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devrt_continuations_live",
			Help: "Current number of parked continuations awaiting a reply",
		},
	)

	opcodesExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devrt_vm_opcodes_executed_total",
			Help: "Total number of VM instructions executed by opcode",
		},
		[]string{"opcode"},
	)

	reactorDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devrt_reactor_invocation_duration_seconds",
			Help:    "Reactor invocation wall-clock duration, from dispatch to halt/return/suspend",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"reactor", "outcome"},
	)
)

// SetQueueDepth records queue's current length.
func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordDispatch records one dispatched wire message.
func RecordDispatch(tag, outcome string) {
	dispatchTotal.WithLabelValues(tag, outcome).Inc()
}

// SetContinuationsLive records the continuation store's current size.
func SetContinuationsLive(n int) {
	continuationsLive.Set(float64(n))
}

// RecordOpcode records execution of one VM instruction.
func RecordOpcode(opcode string) {
	opcodesExecutedTotal.WithLabelValues(opcode).Inc()
}

// RecordReactorInvocation records one reactor invocation's duration and
// terminal outcome (halt, return, suspend, fault).
func RecordReactorInvocation(reactor, outcome string, seconds float64) {
	reactorDurationSeconds.WithLabelValues(reactor, outcome).Observe(seconds)
}
