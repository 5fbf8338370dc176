package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "modelhub_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "controller"},
		},
		[]string{"date", "sha", "version"},
	)

	modelRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhub_model_requests_total",
			Help: "Number of routed model requests",
		},
		[]string{"model", "outcome"},
	)

	routingFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhub_routing_failures_total",
			Help: "Requests that found no healthy worker",
		},
		[]string{"model"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelhub_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker_id", "model"},
	)

	workersRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelhub_workers_registered",
			Help: "Number of currently registered workers",
		},
	)

	breakerOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhub_breaker_opens_total",
			Help: "Circuit breaker open transitions per worker",
		},
		[]string{"worker_id"},
	)

	evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhub_worker_evictions_total",
			Help: "Workers evicted after heartbeat timeout",
		},
		[]string{"model"},
	)
)

// Register registers all controller metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, modelRequests, routingFailures, requestDuration, workersRegistered, breakerOpens, evictions)
}

// SetBuildInfo sets the build info metric for the controller.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordModelRequest increments the model request counter.
func RecordModelRequest(model string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	modelRequests.WithLabelValues(model, outcome).Inc()
}

// RecordRoutingFailure counts a selection that found no healthy worker.
func RecordRoutingFailure(model string) {
	routingFailures.WithLabelValues(model).Inc()
}

// ObserveRequestDuration records the duration of a routed request.
func ObserveRequestDuration(workerID, model string, d time.Duration) {
	requestDuration.WithLabelValues(workerID, model).Observe(d.Seconds())
}

// SetWorkersRegistered sets the registered worker gauge.
func SetWorkersRegistered(n int) {
	workersRegistered.Set(float64(n))
}

// RecordBreakerOpen counts a breaker opening for a worker.
func RecordBreakerOpen(workerID string) {
	breakerOpens.WithLabelValues(workerID).Inc()
}

// RecordEviction counts a heartbeat-timeout eviction.
func RecordEviction(model string) {
	evictions.WithLabelValues(model).Inc()
}
