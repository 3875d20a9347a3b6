package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Permission metrics
	PermissionChecksTotal *prometheus.CounterVec

	// Notification dispatch metrics
	DispatchesTotal          *prometheus.CounterVec
	DispatchDuration         prometheus.Histogram
	RecipientsResolved       prometheus.Histogram
	PushDeliveriesTotal      *prometheus.CounterVec
	PushDeliveryDuration     prometheus.Histogram
	SubscriptionsPrunedTotal prometheus.Counter
	NotificationsPersisted   prometheus.Counter

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	CommunitiesTotal        prometheus.Gauge
	ActiveSubscriptionsGauge prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "communityd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "communityd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "communityd_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "communityd_permission_checks_total",
				Help: "Total number of community permission checks",
			},
			[]string{"action", "allowed"},
		),

		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "communityd_notification_dispatches_total",
				Help: "Total number of notification dispatch invocations",
			},
			[]string{"status"},
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "communityd_notification_dispatch_duration_seconds",
				Help:    "End-to-end notification dispatch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		RecipientsResolved: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "communityd_notification_recipients_resolved",
				Help:    "Number of recipients resolved per dispatch",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		PushDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "communityd_push_deliveries_total",
				Help: "Total number of web push delivery attempts",
			},
			[]string{"status"},
		),
		PushDeliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "communityd_push_delivery_duration_seconds",
				Help:    "Per-subscription push delivery duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		SubscriptionsPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "communityd_push_subscriptions_pruned_total",
				Help: "Push subscriptions deleted after the provider reported them gone",
			},
		),
		NotificationsPersisted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "communityd_notifications_persisted_total",
				Help: "In-app notification rows inserted",
			},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "communityd_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache", "tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "communityd_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache", "tier"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "communityd_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "communityd_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		CommunitiesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "communityd_communities_total",
				Help: "Total number of communities",
			},
		),
		ActiveSubscriptionsGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "communityd_push_subscriptions_active",
				Help: "Number of registered push subscriptions",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.PermissionChecksTotal,
		m.DispatchesTotal,
		m.DispatchDuration,
		m.RecipientsResolved,
		m.PushDeliveriesTotal,
		m.PushDeliveryDuration,
		m.SubscriptionsPrunedTotal,
		m.NotificationsPersisted,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.CommunitiesTotal,
		m.ActiveSubscriptionsGauge,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
