package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/briarlatch/foreman/internal/controller"
)

var (
	workersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_workers_total",
			Help: "Current worker count by runtime status",
		},
		[]string{"status"},
	)

	queueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_queue_length",
			Help: "Queued plus in-progress jobs last observed at the registry",
		},
	)

	totalCreated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_workers_created_total",
			Help: "Total workers provisioned since the controller started",
		},
	)

	totalDestroyed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_workers_destroyed_total",
			Help: "Total workers torn down since the controller started",
		},
	)

	failedScaleAttempts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_failed_scale_attempts",
			Help: "Capacity-denied or failed provisioning attempts since the last successful provision",
		},
	)

	circuitBreakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_circuit_breaker_open",
			Help: "1 if the circuit breaker is currently open, 0 otherwise",
		},
	)

	degraded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_degraded",
			Help: "1 if the named subsystem has failed since its last success",
		},
		[]string{"subsystem"},
	)
)

func init() {
	prometheus.MustRegister(workersTotal)
	prometheus.MustRegister(queueLength)
	prometheus.MustRegister(totalCreated)
	prometheus.MustRegister(totalDestroyed)
	prometheus.MustRegister(failedScaleAttempts)
	prometheus.MustRegister(circuitBreakerOpen)
	prometheus.MustRegister(degraded)
}

// refreshMetrics pushes the latest controller state into the package's
// gauges immediately before a scrape, since the controller has no push
// path of its own (spec.md §6's /api/v1/metrics).
func refreshMetrics(workers []controller.WorkerView, snap controller.Snapshot) {
	workersTotal.Reset()
	for _, v := range workers {
		status := v.RuntimeStatus
		if status == "" {
			status = "registry_only"
		}
		workersTotal.WithLabelValues(status).Inc()
	}

	queueLength.Set(float64(snap.Metrics.CurrentQueueLength))
	totalCreated.Set(float64(snap.Metrics.TotalCreated))
	totalDestroyed.Set(float64(snap.Metrics.TotalDestroyed))
	failedScaleAttempts.Set(float64(snap.Metrics.FailedScaleAttempts))

	if snap.Metrics.CircuitBreakerActive {
		circuitBreakerOpen.Set(1)
	} else {
		circuitBreakerOpen.Set(0)
	}

	degraded.Reset()
	for subsystem := range snap.Degraded {
		degraded.WithLabelValues(subsystem).Set(1)
	}
	if snap.DegradedQueueSignal {
		degraded.WithLabelValues("queue_signal").Set(1)
	}
}
