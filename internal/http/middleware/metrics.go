package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "survey"

// Audiences partition traffic so respondent latency can be tracked apart
// from the admin console and from probes.
const (
	AudienceRespondent = "respondent"
	AudienceAdmin      = "admin"
	AudienceOps        = "ops"
	AudienceUnmatched  = "unmatched"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by audience, method, route and status.",
		},
		[]string{"audience", "method", "route", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"audience", "method", "route"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_inflight",
			Help:      "HTTP requests currently being served.",
		},
		[]string{"audience"},
	)

	// CSV exports dominate the upper buckets.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 9), // 256B..16MiB
		},
		[]string{"audience", "route"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		},
		[]string{"audience"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, rateLimited)
}

// AudienceOf classifies a registered route template. Respondent routes are
// the ones addressed by an invite token or a session public id. An empty
// template means no route matched.
func AudienceOf(route string) string {
	switch {
	case route == "":
		return AudienceUnmatched
	case strings.Contains(route, "/invites/:token"), strings.Contains(route, "/sessions/:publicId"):
		return AudienceRespondent
	case route == "/health", route == "/metrics", strings.HasPrefix(route, "/swagger/"):
		return AudienceOps
	default:
		return AudienceAdmin
	}
}

// Metrics records Prometheus request metrics. Routes are labelled by their
// template; requests that matched nothing share the "unmatched" route so
// scanners cannot blow up label cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		aud := AudienceOf(route)
		if route == "" {
			route = AudienceUnmatched
		}

		inflight := httpInflight.WithLabelValues(aud)
		inflight.Inc()
		defer inflight.Dec()

		start := time.Now()
		c.Next()

		method := c.Request.Method
		httpReqs.WithLabelValues(aud, method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(aud, method, route).Observe(time.Since(start).Seconds())
		// Size is -1 when nothing was written.
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(aud, route).Observe(float64(size))
		}
	}
}
