package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ObservabilityConfig controls HTTP metrics, tracing and access logs.
type ObservabilityConfig struct {
	ServiceName   string
	MetricsPrefix string
	LogRequests   bool
	Enabled       bool
}

// Observability instruments HTTP routes.
type Observability struct {
	cfg       ObservabilityConfig
	logger    *slog.Logger
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewObservability registers the HTTP metrics with reg.
func NewObservability(cfg ObservabilityConfig, reg prometheus.Registerer, logger *slog.Logger) (*Observability, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "lendingd"
	}
	if cfg.MetricsPrefix == "" {
		cfg.MetricsPrefix = "lendingd_http"
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "requests_total",
		Help:      "HTTP requests segmented by route, method and status.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	for _, c := range []prometheus.Collector{requests, durations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &Observability{cfg: cfg, logger: logger, requests: requests, durations: durations}, nil
}

// Middleware traces route through otelhttp and records its metrics.
func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !o.cfg.Enabled {
			return next
		}
		measured := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)
			o.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
			o.durations.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
			if o.cfg.LogRequests {
				o.logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", recorder.status,
					"duration_ms", float64(elapsed.Microseconds())/1000,
					"request_id", RequestIDFrom(r.Context()),
				)
			}
		})
		return otelhttp.NewHandler(measured, o.cfg.ServiceName+" "+route)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
