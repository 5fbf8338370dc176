package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	currentJobsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "modelhub_worker_current_jobs",
		Help: "Number of requests currently in flight",
	})
	registeredGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "modelhub_worker_registered",
		Help: "Whether the worker is registered with the controller (1 or 0)",
	})
	backendUpGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "modelhub_worker_backend_up",
		Help: "Whether the worker can reach its backend (1 or 0)",
	})
	jobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modelhub_worker_jobs_total",
		Help: "Proxied requests by outcome",
	}, []string{"outcome"})
	processingSeconds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modelhub_worker_processing_seconds_total",
		Help: "Total time spent proxying requests",
	})
)

// RegisterMetrics registers the worker metrics with the provided registerer.
func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(currentJobsGauge, registeredGauge, backendUpGauge, jobsProcessed, processingSeconds)
}

func setCurrentJobs(n int) {
	currentJobsGauge.Set(float64(n))
}

func setRegistered(v bool) {
	if v {
		registeredGauge.Set(1)
	} else {
		registeredGauge.Set(0)
	}
}

func setBackendUp(v bool) {
	if v {
		backendUpGauge.Set(1)
	} else {
		backendUpGauge.Set(0)
	}
}

func jobCompleted(success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	jobsProcessed.WithLabelValues(outcome).Inc()
	processingSeconds.Add(d.Seconds())
}
