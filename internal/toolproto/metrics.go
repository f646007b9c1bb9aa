// Package toolproto Prometheus metrics for tool invocations.
package toolproto

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsTotal counts completed invocations by provider and outcome.
	// Labels: provider, outcome (ok, timeout, unreachable, rejected,
	// invalid_operation)
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weaver",
			Subsystem: "toolproto",
			Name:      "calls_total",
			Help:      "Total tool invocations by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// CallDuration tracks end-to-end invocation latency including retries.
	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "weaver",
			Subsystem: "toolproto",
			Name:      "call_duration_seconds",
			Help:      "Tool invocation duration in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// RetriesTotal counts retry attempts beyond the first.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weaver",
			Subsystem: "toolproto",
			Name:      "retries_total",
			Help:      "Total retry attempts by provider",
		},
		[]string{"provider"},
	)

	// BreakerState exposes provider health (0=healthy, 1=degraded, 2=unreachable).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "weaver",
			Subsystem: "toolproto",
			Name:      "breaker_state",
			Help:      "Provider breaker state (0=healthy, 1=degraded, 2=unreachable)",
		},
		[]string{"provider"},
	)
)

func recordHealthMetric(provider string, h Health) {
	var v float64
	switch h {
	case HealthDegraded:
		v = 1
	case HealthUnreachable:
		v = 2
	}
	BreakerState.WithLabelValues(provider).Set(v)
}
