package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scpibridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scpibridge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	hubSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scpibridge",
			Subsystem: "hub",
			Name:      "sessions_total",
			Help:      "Operator sessions by how they ended.",
		},
		[]string{"outcome"},
	)
	dispatchCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scpibridge",
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Dispatched SCPI commands.",
		},
		[]string{"class", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scpibridge",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Command dispatch duration including settle delays.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		},
		[]string{"class"},
	)
	directoryInstruments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scpibridge",
			Subsystem: "directory",
			Name:      "instruments",
			Help:      "Instruments advertised in the current session.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			hubSessions,
			dispatchCommands,
			dispatchDuration,
			directoryInstruments,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordSession counts one finished session; outcome is "closed", "error" or
// "shutdown".
func RecordSession(outcome string) {
	RegisterMetrics()
	hubSessions.WithLabelValues(outcome).Inc()
}

func RecordDispatch(class string, success bool, duration time.Duration) {
	RegisterMetrics()
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	dispatchCommands.WithLabelValues(class, outcome).Inc()
	dispatchDuration.WithLabelValues(class).Observe(duration.Seconds())
}

func SetDirectorySize(n int) {
	RegisterMetrics()
	directoryInstruments.Set(float64(n))
}
