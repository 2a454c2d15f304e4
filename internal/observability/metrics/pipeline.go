package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

// PipelineMetrics implements ports.PipelineObserver and ports.ReviewObserver
// and also tracks worker-side document processing.
type PipelineMetrics struct {
	service string

	runsInFlight       prometheus.Gauge
	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	stageDuration      *prometheus.HistogramVec
	reviewsTotal       *prometheus.CounterVec
	processTotal       *prometheus.CounterVec
	processDuration    *prometheus.HistogramVec
	processInFlight    prometheus.Gauge
	breakerTransitions *prometheus.CounterVec
	retriesTotal       *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registry prometheus.Registerer) *PipelineMetrics {
	stageBuckets := []float64{0.1, 0.5, 0.8, 1, 1.5, 2, 3, 5}

	m := &PipelineMetrics{
		service: service,
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "runs_in_flight",
			Help:        "Number of pipeline runs currently walking stages.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by final status.",
		}, []string{"service", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds by final status.",
			Buckets:   []float64{1, 2.5, 5, 7.5, 10, 15, 30},
		}, []string{"service", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Completed stage duration in seconds.",
			Buckets:   stageBuckets,
		}, []string{"service", "stage"}),
		reviewsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "decisions_total",
			Help:      "Review decisions by action and outcome.",
		}, []string{"service", "action", "outcome"}),
		processTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by status.",
		}, []string{"service", "status"}),
		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "status"}),
		processInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "document_process_in_flight",
			Help:        "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes by operation and target state.",
		}, []string{"service", "operation", "to"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Scheduled retries of postgres and NATS operations.",
		}, []string{"service", "operation"}),
	}

	registry.MustRegister(
		m.runsInFlight,
		m.runsTotal,
		m.runDuration,
		m.stageDuration,
		m.reviewsTotal,
		m.processTotal,
		m.processDuration,
		m.processInFlight,
		m.breakerTransitions,
		m.retriesTotal,
	)
	return m
}

func (m *PipelineMetrics) RunStarted() {
	m.runsInFlight.Inc()
}

func (m *PipelineMetrics) RunFinished(status domain.RunStatus, duration time.Duration) {
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(m.service, string(status)).Inc()
	m.runDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
}

func (m *PipelineMetrics) StageCompleted(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveReview(action string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.reviewsTotal.WithLabelValues(m.service, action, outcome).Inc()
}

func (m *PipelineMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *PipelineMetrics) FinishDocument(duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.processTotal.WithLabelValues(m.service, status).Inc()
	m.processDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

// BreakerStateChanged and RetryScheduled implement resilience.Observer.
func (m *PipelineMetrics) BreakerStateChanged(operation, _, to string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, to).Inc()
}

func (m *PipelineMetrics) RetryScheduled(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}
