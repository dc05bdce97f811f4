package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Observability records per-route request counts, latencies and traces for
// the settlement gateway. Metrics live in a private registry exposed via
// MetricsHandler so the gateway does not pollute the default one.
type Observability struct {
	logger    *slog.Logger
	tracer    trace.Tracer
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	registry  *prometheus.Registry
}

func NewObservability(logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradefin",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "HTTP requests handled, by route, method and status.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tradefin",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds, by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	registry.MustRegister(requests, durations)
	return &Observability{
		logger:    logger,
		tracer:    otel.Tracer("tradefin/gateway"),
		requests:  requests,
		durations: durations,
		registry:  registry,
	}
}

// Middleware instruments the wrapped handler under the given route label.
func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := o.tracer.Start(r.Context(), route, trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
			))
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.status_code", recorder.status))
			span.End()

			elapsed := time.Since(start)
			o.requests.WithLabelValues(route, r.Method, http.StatusText(recorder.status)).Inc()
			o.durations.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
			o.logger.Debug("request",
				slog.String("route", route),
				slog.String("method", r.Method),
				slog.Int("status", recorder.status),
				slog.Duration("elapsed", elapsed),
			)
		})
	}
}

// MetricsHandler serves the gateway's Prometheus registry.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
