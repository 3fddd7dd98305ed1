// Package metrics exposes Prometheus instrumentation for the publisher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the publisher's collectors on a private registry so tests
// can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	SlotRuns        *prometheus.CounterVec
	SlotDuration    *prometheus.HistogramVec
	AdapterCalls    *prometheus.CounterVec
	AdapterRetries  prometheus.Counter
	SegmentsPosted  prometheus.Counter
	DraftsGenerated *prometheus.CounterVec
	ReviewActions   *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SlotRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_slot_runs_total",
			Help: "Slot executions by job and outcome.",
		}, []string{"job", "outcome"}),

		SlotDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "publisher_slot_duration_seconds",
			Help:    "Wall time of one slot execution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),

		AdapterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_adapter_calls_total",
			Help: "Platform adapter calls by operation and result.",
		}, []string{"operation", "result"}),

		AdapterRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "publisher_adapter_retries_total",
			Help: "Retried platform adapter calls.",
		}),

		SegmentsPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "publisher_segments_posted_total",
			Help: "Individual segments successfully posted.",
		}),

		DraftsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_drafts_generated_total",
			Help: "Drafts created by content kind.",
		}, []string{"kind"}),

		ReviewActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_review_actions_total",
			Help: "Review decisions by action.",
		}, []string{"action"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.SlotRuns,
		m.SlotDuration,
		m.AdapterCalls,
		m.AdapterRetries,
		m.SegmentsPosted,
		m.DraftsGenerated,
		m.ReviewActions,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
