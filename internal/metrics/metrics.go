// Package metrics records recovery events and node health.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event kinds and outcomes reported through RecordEvent.
const (
	KindRecovery  = "recovery"
	KindEvacuate  = "evacuate"
	KindObject    = "object"
	KindNodeCheck = "node_check"
	KindPodCheck  = "pod_check"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeQueued  = "queued"
)

// Recorder is the metrics collaborator used by the orchestrator and monitor.
type Recorder interface {
	RecordEvent(kind, outcome string, duration time.Duration)
	SetQueueDepth(n int)
	SetActive(n int)
	SetNodeStatus(node string, healthy bool)
	SetPodStatus(pod string, running bool, restarts int32)
}

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	EventsTotal    *prometheus.CounterVec   // zraid_recovery_events_total{kind,outcome}
	EventDuration  *prometheus.HistogramVec // zraid_recovery_duration_seconds{kind}
	ActiveRecovery prometheus.Gauge         // zraid_recoveries_active
	QueuedRecovery prometheus.Gauge         // zraid_recoveries_queued
	NodeStatus     *prometheus.GaugeVec     // zraid_node_status{node} (1 = healthy)
	PodStatus      *prometheus.GaugeVec     // zraid_pod_status{pod} (1 = running)
	PodRestarts    *prometheus.GaugeVec     // zraid_pod_restarts{pod}
}

// NewPrometheusRecorder registers the collectors on registry, or on the
// default registerer when registry is nil.
func NewPrometheusRecorder(registry prometheus.Registerer) *PrometheusRecorder {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusRecorder{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zraid_recovery_events_total",
			Help: "Recovery events by kind and outcome",
		}, []string{"kind", "outcome"}),

		EventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zraid_recovery_duration_seconds",
			Help:    "Duration of recovery steps in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"kind"}),

		ActiveRecovery: factory.NewGauge(prometheus.GaugeOpts{
			Name: "zraid_recoveries_active",
			Help: "Node recoveries currently running",
		}),

		QueuedRecovery: factory.NewGauge(prometheus.GaugeOpts{
			Name: "zraid_recoveries_queued",
			Help: "Node recoveries waiting for a free slot",
		}),

		NodeStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zraid_node_status",
			Help: "Node health as last observed (1 = ready, 0 = not ready)",
		}, []string{"node"}),

		PodStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zraid_pod_status",
			Help: "Storage pod phase as last observed (1 = running, 0 = not running)",
		}, []string{"pod"}),

		PodRestarts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zraid_pod_restarts",
			Help: "Restart count of the storage pod's first container",
		}, []string{"pod"}),
	}
}

func (r *PrometheusRecorder) RecordEvent(kind, outcome string, duration time.Duration) {
	r.EventsTotal.WithLabelValues(kind, outcome).Inc()
	if duration > 0 {
		r.EventDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

func (r *PrometheusRecorder) SetQueueDepth(n int) {
	r.QueuedRecovery.Set(float64(n))
}

func (r *PrometheusRecorder) SetActive(n int) {
	r.ActiveRecovery.Set(float64(n))
}

func (r *PrometheusRecorder) SetNodeStatus(node string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	r.NodeStatus.WithLabelValues(node).Set(v)
}

func (r *PrometheusRecorder) SetPodStatus(pod string, running bool, restarts int32) {
	v := 0.0
	if running {
		v = 1
	}
	r.PodStatus.WithLabelValues(pod).Set(v)
	r.PodRestarts.WithLabelValues(pod).Set(float64(restarts))
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordEvent(string, string, time.Duration) {}
func (Nop) SetQueueDepth(int)                         {}
func (Nop) SetActive(int)                             {}
func (Nop) SetNodeStatus(string, bool)                {}
func (Nop) SetPodStatus(string, bool, int32)          {}
