// Package metrics holds the Prometheus collectors shared by the custody
// packages. Collectors count even when the registry is never served.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "snet_custody"

var (
	once     sync.Once
	registry *prometheus.Registry

	PipelineStageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_total",
			Help:      "Transaction pipeline stage transitions",
		},
		[]string{"operation", "stage"},
	)

	PipelineResultTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_result_total",
			Help:      "Terminal pipeline outcomes by operation and status",
		},
		[]string{"operation", "status"},
	)

	PipelineDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time from build to receipt",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 90, 180},
		},
		[]string{"operation"},
	)

	OffloadUploadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offload_upload_total",
			Help:      "Payload uploads by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	PaymentDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_decisions_total",
			Help:      "Payment verification decisions",
		},
		[]string{"accept", "reason"},
	)

	PaymentSettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_settlements_total",
			Help:      "Payment settlement attempts by outcome",
		},
		[]string{"outcome"},
	)

	SignerResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signer_resolutions_total",
			Help:      "Credential source attempts by source and outcome",
		},
		[]string{"source", "outcome"},
	)
)

// Init builds the registry with the Go and process collectors plus every
// custody collector. Later calls return the same registry.
func Init() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		registry.MustRegister(
			PipelineStageTotal,
			PipelineResultTotal,
			PipelineDurationSeconds,
			OffloadUploadTotal,
			PaymentDecisionsTotal,
			PaymentSettlementsTotal,
			SignerResolutionsTotal,
		)
	})
	return registry
}
