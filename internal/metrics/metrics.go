package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking_engine",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	checkoutChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking_engine",
			Name:      "checkout_checks_total",
			Help:      "Checkout validator checks by type and outcome.",
		},
		[]string{"check", "outcome"},
	)

	calendarProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking_engine",
			Name:      "calendar_probes_total",
			Help:      "Calendar capacity probes by outcome.",
		},
		[]string{"outcome"},
	)

	softLocks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "booking_engine",
			Name:      "locker_soft_locks",
			Help:      "Currently held locker soft locks.",
		},
	)

	lockerBackendCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking_engine",
			Name:      "locker_backend_calls_total",
			Help:      "External locker backend calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, checkoutChecks, calendarProbes, softLocks, lockerBackendCalls)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncCheck records one validator check outcome.
func IncCheck(check, outcome string) {
	checkoutChecks.WithLabelValues(check, outcome).Inc()
}

// IncProbe records one calendar capacity probe outcome.
func IncProbe(outcome string) {
	calendarProbes.WithLabelValues(outcome).Inc()
}

// SetSoftLocks reports the current soft-lock count.
func SetSoftLocks(n int) {
	softLocks.Set(float64(n))
}

// IncLockerCall records one external locker backend call.
func IncLockerCall(operation, outcome string) {
	lockerBackendCalls.WithLabelValues(operation, outcome).Inc()
}
