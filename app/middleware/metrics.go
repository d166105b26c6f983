package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API surfaces
const (
	SurfaceWebhook = "webhook"
	SurfaceTenant  = "tenant"
	SurfaceOps     = "ops"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waba_http_requests_total",
			Help: "HTTP requests by API surface, route and status",
		},
		[]string{"surface", "method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waba_http_request_duration_seconds",
			Help:    "HTTP request latency by API surface and route",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"surface", "method", "route"},
	)

	httpInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waba_http_inflight_requests",
			Help: "HTTP requests currently being served by API surface",
		},
		[]string{"surface"},
	)

	// provider callbacks turned away before ingest (bad signature, bad verify token, bad business id)
	webhookRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waba_webhook_rejections_total",
			Help: "Provider webhook calls rejected before ingest, by status",
		},
		[]string{"method", "status"},
	)
)

// SurfaceOf classifies a route template
func SurfaceOf(route string) string {
	switch {
	case strings.HasPrefix(route, "/api/v1/webhooks/"):
		return SurfaceWebhook
	case strings.HasPrefix(route, "/api/v1/campaigns/"),
		strings.HasPrefix(route, "/api/v1/jobs/"),
		strings.HasPrefix(route, "/api/v1/billing/"):
		return SurfaceTenant
	default:
		return SurfaceOps
	}
}

// Metrics records request metrics per API surface. The matched route template is
// used as label so tenant ids and job uuids never reach Prometheus.
// Requests for skipPath (the scrape endpoint) are not recorded.
func Metrics(skipPath string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if skipPath != "" && c.Path() == skipPath {
			return c.Next()
		}

		start := time.Now()
		pending := SurfaceOf(c.Path())
		httpInFlight.WithLabelValues(pending).Inc()
		defer httpInFlight.WithLabelValues(pending).Dec()

		err := c.Next()

		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		}
		surface := SurfaceOf(route)
		status := c.Response().StatusCode()
		method := c.Method()

		httpRequestsTotal.WithLabelValues(surface, method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(surface, method, route).Observe(time.Since(start).Seconds())
		if surface == SurfaceWebhook && status >= 400 && status < 500 {
			webhookRejections.WithLabelValues(method, strconv.Itoa(status)).Inc()
		}
		return err
	}
}
