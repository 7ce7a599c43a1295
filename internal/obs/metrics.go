package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by every route.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Directory domain metrics.
var (
	schemaMigrationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directory_schema_migrations_total",
		Help: "Completed asset type schema changes.",
	})

	schemaAssetsMigrated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directory_schema_assets_migrated_total",
		Help: "Assets rewritten during schema changes.",
	})

	schemaMigrationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "directory_schema_migration_duration_seconds",
		Help:    "Duration of asset type schema changes, including the asset sweep.",
		Buckets: prometheus.DefBuckets,
	})

	sessionsPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directory_sessions_purged_total",
		Help: "Expired sessions removed by the sweeper.",
	})

	catalogFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_catalog_fetches_total",
			Help: "Remote permission catalog fetch attempts.",
		},
		[]string{"outcome"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		schemaMigrationsTotal, schemaAssetsMigrated, schemaMigrationDuration,
		sessionsPurgedTotal, catalogFetchesTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSchemaMigration records one completed schema change.
func ObserveSchemaMigration(assets int64, elapsed time.Duration) {
	schemaMigrationsTotal.Inc()
	schemaAssetsMigrated.Add(float64(assets))
	schemaMigrationDuration.Observe(elapsed.Seconds())
}

// CountPurgedSessions records sessions removed by the sweeper.
func CountPurgedSessions(n int64) {
	if n > 0 {
		sessionsPurgedTotal.Add(float64(n))
	}
}

// CountCatalogFetch records one remote catalog fetch attempt.
func CountCatalogFetch(ok bool) {
	outcome := "error"
	if ok {
		outcome = "success"
	}
	catalogFetchesTotal.WithLabelValues(outcome).Inc()
}

// CanonicalPath collapses numeric id segments so metric labels stay bounded.
// "/v1/accounts/42/permissions" becomes "/v1/accounts/:id/permissions".
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == "/" {
		return "/"
	}
	parts := strings.Split(p, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if _, err := strconv.ParseInt(part, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

// Instrument wraps a handler with RPS, latency and in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
