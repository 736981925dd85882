package observability

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics records pool call outcomes and reserve utilization. It
// satisfies lending.Metrics.
type LendingMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	utilization *prometheus.GaugeVec
}

// NewLendingMetrics registers the pool metrics with reg.
func NewLendingMetrics(reg prometheus.Registerer) (*LendingMetrics, error) {
	m := &LendingMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Name:      "operations_total",
			Help:      "Pool calls segmented by operation and result code.",
		}, []string{"op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lending",
			Name:      "operation_seconds",
			Help:      "Latency of pool calls including lock wait.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lending",
			Name:      "reserve_utilization",
			Help:      "Total debt over total liquidity of each reserve after its last update.",
		}, []string{"asset"}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.latency, m.utilization} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register lending metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveOperation counts one pool call.
func (m *LendingMetrics) ObserveOperation(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetReserveUtilization publishes the utilization of asset.
func (m *LendingMetrics) SetReserveUtilization(asset common.Address, ratio float64) {
	if m == nil {
		return
	}
	m.utilization.WithLabelValues(asset.Hex()).Set(ratio)
}

// RPCMetrics tracks JSON-RPC method traffic.
type RPCMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// NewRPCMetrics registers the RPC metrics with reg.
func NewRPCMetrics(reg prometheus.Registerer) (*RPCMetrics, error) {
	m := &RPCMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests segmented by method and outcome.",
		}, []string{"method", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: "rpc",
			Name:      "errors_total",
			Help:      "JSON-RPC errors segmented by method and error code.",
		}, []string{"method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lending",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency of JSON-RPC handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Subsystem: "rpc",
			Name:      "throttles_total",
			Help:      "Requests rejected before dispatch.",
		}, []string{"reason"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.errors, m.latency, m.throttles} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register rpc metrics: %w", err)
		}
	}
	return m, nil
}

// Observe records a handled call. code is empty on success.
func (m *RPCMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons are stable strings such
// as "rate_limit" or "body_too_large".
func (m *RPCMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}
