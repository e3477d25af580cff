package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poimap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "poimap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "poimap",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Engine metrics
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poimap",
		Subsystem: "engine",
		Name:      "fetches_total",
		Help:      "Total POI fetches by variant and outcome",
	}, []string{"variant", "outcome"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "poimap",
		Subsystem: "engine",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of POI fetches",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"variant"})

	CameraEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poimap",
		Subsystem: "engine",
		Name:      "camera_events_total",
		Help:      "Camera-changed events by decision",
	}, []string{"decision"})

	MarkersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poimap",
		Subsystem: "engine",
		Name:      "markers_created_total",
		Help:      "Markers mounted by the reconciler",
	}, []string{"variant"})

	MarkersRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poimap",
		Subsystem: "engine",
		Name:      "markers_removed_total",
		Help:      "Markers unmounted by the reconciler",
	}, []string{"variant"})

	StaleResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poimap",
		Subsystem: "engine",
		Name:      "stale_responses_total",
		Help:      "Fetch responses dropped because a newer cycle was issued",
	}, []string{"variant"})

	Geolocation = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poimap",
		Subsystem: "engine",
		Name:      "geolocation_total",
		Help:      "Bootstrap geolocation attempts by outcome",
	}, []string{"outcome"})

	Enrichment = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poimap",
		Subsystem: "engine",
		Name:      "enrichment_total",
		Help:      "Charger-status enrichment fetches by outcome",
	}, []string{"outcome"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "poimap",
		Name:      "sessions_active",
		Help:      "Currently mounted map sessions",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "poimap",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
