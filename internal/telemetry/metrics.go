package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	SubmittedCounter = prometheus.NewCounter(prometheus.CounterOpts{Name: "conversions_submitted_total", Help: "Conversion jobs submitted"})
	CompletedCounter = prometheus.NewCounter(prometheus.CounterOpts{Name: "conversions_completed_total", Help: "Jobs that produced a PDF/A result"})
	FailedCounter    = prometheus.NewCounter(prometheus.CounterOpts{Name: "conversions_failed_total", Help: "Jobs that failed in an engine or validation"})
	CancelledCounter = prometheus.NewCounter(prometheus.CounterOpts{Name: "conversions_cancelled_total", Help: "Jobs cancelled by a client"})
	TimedOutCounter  = prometheus.NewCounter(prometheus.CounterOpts{Name: "conversions_timed_out_total", Help: "Jobs that exceeded the max runtime"})
	AdmissionRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "conversions_admission_rejects_total", Help: "Submissions rejected by the rate limiter"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "conversions_inflight", Help: "Jobs currently executing in workers"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "conversions_queue_depth", Help: "Ready queue depth"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			SubmittedCounter,
			CompletedCounter,
			FailedCounter,
			CancelledCounter,
			TimedOutCounter,
			AdmissionRejects,
			InFlightGauge,
			QueueDepthGauge,
		)
	})
	return promhttp.Handler()
}
