package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	lockWaitDuration *prometheus.HistogramVec

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeRequest   prometheus.Gauge
	interruptTotal  *prometheus.CounterVec

	openSessions    prometheus.Gauge
	resourceBinds   *prometheus.CounterVec
	resourceCloses  *prometheus.CounterVec
	executionsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			lockWaitDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "knife_lock_wait_seconds",
					Help:    "Time spent waiting to acquire a lock, by lock name.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lock"},
			),
			requestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knife_request_total",
					Help: "Total RPC requests by method and status.",
				},
				[]string{"method", "status"},
			),
			requestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "knife_request_duration_seconds",
					Help:    "RPC request duration in seconds by method.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method"},
			),
			activeRequest: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "knife_active_request",
					Help: "Whether a tracked engine request is in flight (1) or not (0).",
				},
			),
			interruptTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knife_interrupt_total",
					Help: "Interrupt attempts by result.",
				},
				[]string{"result"},
			),
			openSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "knife_open_sessions",
					Help: "Current number of open sessions.",
				},
			),
			resourceBinds: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knife_resource_bind_total",
					Help: "Resource bindings by ownership.",
				},
				[]string{"ownership"},
			),
			resourceCloses: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knife_resource_close_total",
					Help: "Resource close attempts by status.",
				},
				[]string{"status"},
			),
			executionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knife_execution_total",
					Help: "Script executions by outcome (ok, error, interrupted, exit).",
				},
				[]string{"outcome"},
			),
		}

		prometheus.MustRegister(
			m.lockWaitDuration,
			m.requestTotal,
			m.requestDuration,
			m.activeRequest,
			m.interruptTotal,
			m.openSessions,
			m.resourceBinds,
			m.resourceCloses,
			m.executionsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordLockWait(lock string, duration time.Duration) {
	m := getMetrics()
	m.lockWaitDuration.WithLabelValues(lock).Observe(duration.Seconds())
}

func RecordRequest(method string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.requestTotal.WithLabelValues(method, status).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func SetActiveRequest(active bool) {
	m := getMetrics()
	value := 0.0
	if active {
		value = 1.0
	}
	m.activeRequest.Set(value)
}

func RecordInterrupt(result string) {
	m := getMetrics()
	m.interruptTotal.WithLabelValues(result).Inc()
}

func SetOpenSessions(count int) {
	m := getMetrics()
	m.openSessions.Set(float64(count))
}

func RecordResourceBind(owned bool) {
	m := getMetrics()
	ownership := "borrowed"
	if owned {
		ownership = "owned"
	}
	m.resourceBinds.WithLabelValues(ownership).Inc()
}

func RecordResourceClose(success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.resourceCloses.WithLabelValues(status).Inc()
}

func RecordExecution(outcome string) {
	m := getMetrics()
	m.executionsTotal.WithLabelValues(outcome).Inc()
}
