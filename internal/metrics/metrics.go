// Package metrics exposes the Prometheus collectors shared by the API server
// and the workers.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/litgraph/backend/pkg/httpclient"
)

type Metrics struct {
	TasksTotal       *prometheus.CounterVec
	TaskDuration     prometheus.Histogram
	DedupHitsTotal   *prometheus.CounterVec
	OutboundRequests *prometheus.CounterVec
	QueueWaiting     prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "literature_tasks_total",
			Help: "Ingestion tasks by terminal outcome.",
		}, []string{"outcome"}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "literature_task_duration_seconds",
			Help:    "Wall time from dequeue to terminal state.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		DedupHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "literature_dedup_hits_total",
			Help: "Deduplication hits by deciding phase.",
		}, []string{"phase"}),
		OutboundRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outbound_requests_total",
			Help: "Outbound HTTP requests by destination class and status.",
		}, []string{"dest", "status"}),
		QueueWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Name: "literature_worker_tasks_inflight",
			Help: "Tasks currently being processed by this worker.",
		}),
	}
}

// ObserveOutbound is the httpclient.OnResult hook.
func (m *Metrics) ObserveOutbound(dest httpclient.DestClass, status int, err error) {
	label := strconv.Itoa(status)
	if err != nil && status == 0 {
		label = "error"
	}
	m.OutboundRequests.WithLabelValues(string(dest), label).Inc()
}
