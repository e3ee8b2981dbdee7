package service

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/member-signups/internal/rpc"
)

// MetricsSnapshot is a lightweight view over the collected counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	RPCCallsTotal            uint64    `json:"rpc_calls_total"`
	RPCFaultsTotal           uint64    `json:"rpc_faults_total"`
	AverageRPCDurationMs     float64   `json:"average_rpc_duration_ms"`
	SignupRuns               uint64    `json:"signup_runs"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic and
// member service calls.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	rpcDuration     *prometheus.HistogramVec
	rpcTotal        *prometheus.CounterVec
	signupMembers   prometheus.Histogram

	requestCount         uint64
	requestDurationTotal uint64
	rpcCount             uint64
	rpcFaultCount        uint64
	rpcDurationTotal     uint64
	signupRuns           uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	rpcDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "member_service_call_duration_seconds",
		Help:    "Duration of member service calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "action"})

	rpcTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "member_service_calls_total",
		Help: "Total member service calls by outcome",
	}, []string{"model", "action", "outcome"})

	signupMembers := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "signup_members",
		Help:    "Members per computed signup list",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, rpcDuration, rpcTotal, signupMembers, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		rpcDuration:     rpcDuration,
		rpcTotal:        rpcTotal,
		signupMembers:   signupMembers,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveRPC implements rpc.Observer.
func (m *MetricsService) ObserveRPC(model, action string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	var fault *rpc.RemoteFault
	switch {
	case errors.As(err, &fault):
		outcome = "fault"
		atomic.AddUint64(&m.rpcFaultCount, 1)
	case err != nil:
		outcome = "error"
	}
	m.rpcDuration.WithLabelValues(model, action).Observe(duration.Seconds())
	m.rpcTotal.WithLabelValues(model, action, outcome).Inc()
	atomic.AddUint64(&m.rpcCount, 1)
	atomic.AddUint64(&m.rpcDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveSignupRun records the size of a computed signup list.
func (m *MetricsService) ObserveSignupRun(members int) {
	if m == nil {
		return
	}
	m.signupMembers.Observe(float64(members))
	atomic.AddUint64(&m.signupRuns, 1)
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	calls := atomic.LoadUint64(&m.rpcCount)
	callDuration := atomic.LoadUint64(&m.rpcDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var avgRPCMs float64
	if calls > 0 {
		avgRPCMs = float64(callDuration) / float64(calls) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		RPCCallsTotal:            calls,
		RPCFaultsTotal:           atomic.LoadUint64(&m.rpcFaultCount),
		AverageRPCDurationMs:     avgRPCMs,
		SignupRuns:               atomic.LoadUint64(&m.signupRuns),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
