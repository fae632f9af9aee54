package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mobilemech"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autocancel",
			Name:      "runs_total",
			Help:      "Overdue sweeps by result.",
		},
		[]string{"result"},
	)

	cancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autocancel",
			Name:      "appointments_cancelled_total",
			Help:      "Appointments cancelled by the overdue sweep.",
		},
	)

	cleanupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autocancel",
			Name:      "cleanup_failures_total",
			Help:      "Quote cleanups that failed after a cancellation.",
		},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "autocancel",
			Name:      "run_duration_seconds",
			Help:      "Duration of overdue sweeps.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, runs, cancelled, cleanupFailures, runDuration)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveRun records a finished sweep.
func ObserveRun(success bool, cancelledCount int, d time.Duration) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}
	runs.WithLabelValues(result).Inc()
	runDuration.Observe(d.Seconds())
	if cancelledCount > 0 {
		cancelled.Add(float64(cancelledCount))
	}
}

func IncCleanupFailure() {
	cleanupFailures.Inc()
}
