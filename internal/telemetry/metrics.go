// Package telemetry carries the logger setup and the Prometheus metrics for
// the package manager.
//
// # Prometheus Metrics Endpoint
//
// Metrics are registered against the default registry and served on the
// side-channel listener started by cmd/fair, not by the Gin router:
//
//	GET http://<host>:<FAIR_TELEMETRY_METRICS_PORT>/metrics
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms for the status API
//   - DID resolution and document cache counters
//   - Metadata fetch latency
//   - Install results and signature verification outcomes
//   - Update check outcomes and sweep duration
//   - Registered package counts and history database pool usage
//
// # Label Cardinality
//
// No metric is labelled by DID, slug or URL. Results are labelled with the
// stable codes from apperr.Kind.
package telemetry

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics for the status API, labelled by route template.
//
// Example PromQL queries:
//   - Request rate:   rate(fair_http_requests_total[5m])
//   - p99 latency:    histogram_quantile(0.99, sum by (path, le) (rate(fair_http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fair_http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fair_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// DID metrics.
//
// DIDResolutionsTotal counts network resolutions by method and result. The
// result is "ok" or an error kind such as "transport_error".
//
// DocumentCacheRequestsTotal counts cache lookups by outcome (hit, miss). A
// healthy sweep over N packages sharing a DID shows one miss per TTL window.
//
// Example PromQL queries:
//   - Hit ratio:  sum(rate(fair_did_document_cache_requests_total{outcome="hit"}[15m])) / sum(rate(fair_did_document_cache_requests_total[15m]))
var (
	DIDResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fair_did_resolutions_total",
			Help: "Total number of DID document resolutions, by DID method and result.",
		},
		[]string{"method", "result"},
	)

	DocumentCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fair_did_document_cache_requests_total",
			Help: "Total number of DID document cache lookups, by outcome.",
		},
		[]string{"outcome"},
	)
)

// MetadataFetchDuration observes metadata document requests by result.
var MetadataFetchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fair_metadata_fetch_duration_seconds",
		Help:    "Duration of metadata document requests, by result.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 7},
	},
	[]string{"result"},
)

// Install metrics.
//
// InstallsTotal counts installer runs by package type and result kind.
// SignatureVerificationsTotal counts verifier outcomes (verified, invalid,
// skipped).
var (
	InstallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fair_installs_total",
			Help: "Total number of package installs, by package type and result.",
		},
		[]string{"type", "result"},
	)

	SignatureVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fair_signature_verifications_total",
			Help: "Total number of artifact signature verifications, by result.",
		},
		[]string{"result"},
	)
)

// Update check metrics.
//
// UpdateChecksTotal counts per-package outcomes: update, no_update, error,
// backoff and skipped.
//
// Example PromQL queries:
//   - Error share:  sum(rate(fair_update_checks_total{outcome="error"}[1h])) / sum(rate(fair_update_checks_total[1h]))
var (
	UpdateChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fair_update_checks_total",
			Help: "Total number of per-package update checks, by package type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	UpdateSweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fair_update_sweep_duration_seconds",
			Help:    "Duration of a full update sweep over registered packages, by package type.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

// RegisteredPackages is the number of installed packages carrying a DID, by
// package type. It is set after every registry rescan.
var RegisteredPackages = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "fair_registered_packages",
		Help: "Number of installed packages carrying a DID header, by package type.",
	},
	[]string{"type"},
)

// BackgroundPanicsTotal counts panics recovered in background tasks, by
// task name.
var BackgroundPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fair_background_panics_total",
		Help: "Total panics recovered in background tasks, by task.",
	},
	[]string{"task"},
)

// Database pool metrics for the optional history database.
var (
	DBOpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fair_db_open_connections",
		Help: "Number of open connections to the history database.",
	})

	DBInUseConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fair_db_in_use_connections",
		Help: "Number of history database connections currently in use.",
	})
)

// StartDBStatsCollector samples the pool statistics of db every interval
// until ctx is cancelled.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			recordDBStats(db.Stats())
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func recordDBStats(s sql.DBStats) {
	DBOpenConnections.Set(float64(s.OpenConnections))
	DBInUseConnections.Set(float64(s.InUse))
}
