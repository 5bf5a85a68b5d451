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
		Namespace: "fieldpins",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldpins",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Marker metrics
	MarkersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldpins",
		Subsystem: "markers",
		Name:      "placed_total",
		Help:      "Marker placements by result (ok, remote_error, invalid)",
	}, []string{"result"})

	MarkersLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldpins",
		Subsystem: "markers",
		Name:      "loaded",
		Help:      "Markers held after the last full refresh",
	})

	PhotoUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldpins",
		Subsystem: "uploads",
		Name:      "completed_total",
		Help:      "Photo upload tasks by terminal result",
	}, []string{"result"})

	PhotoUploadsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldpins",
		Subsystem: "uploads",
		Name:      "coalesced_total",
		Help:      "Enqueue calls dropped because an equivalent task was live",
	})

	UploadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldpins",
		Subsystem: "uploads",
		Name:      "in_flight",
		Help:      "Photo uploads currently transferring",
	})

	UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fieldpins",
		Subsystem: "uploads",
		Name:      "duration_seconds",
		Help:      "Time from upload start to terminal state",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	// Location metrics
	PositionUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldpins",
		Subsystem: "location",
		Name:      "updates_total",
		Help:      "Position updates by outcome (emitted, filtered)",
	}, []string{"outcome"})

	GeocodeHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldpins",
		Subsystem: "geocode",
		Name:      "cache_hits_total",
		Help:      "Geocode cache hits by tier (memory, persistent, shared)",
	}, []string{"tier"})

	GeocodeMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldpins",
		Subsystem: "geocode",
		Name:      "cache_misses_total",
		Help:      "Geocode lookups that reached the provider",
	})

	GeocodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldpins",
		Subsystem: "geocode",
		Name:      "errors_total",
		Help:      "Provider failures answered with the unknown address",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldpins",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldpins",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldpins",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldpins",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
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

// UpdateDBPoolMetrics copies pool gauges from a pgxpool.Stat without
// importing pgx into this package.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
