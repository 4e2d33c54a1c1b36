// Package metrics exposes the Prometheus registry of the gateway. Metrics are
// defined with promauto in the package that owns them (fetcher, cache,
// resultcache, orchestrator, invalidation); this package serves them and lists
// them for reference.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all packages use via promauto.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer behind Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Upstream requests (pkg/fetcher):
//   - srp_upstream_requests_total{domain, outcome} (Counter)
//   - srp_upstream_request_duration_seconds{domain} (Histogram)
//   - srp_upstream_errors_total{class} (Counter)
//   - srp_upstream_retries_total{error_class} (Counter)
//   - srp_upstream_retry_backoff_seconds{error_class} (Histogram)
//   - srp_upstream_retry_exhausted_total{error_class} (Counter)
//
// Upstream response cache (pkg/cache):
//   - srp_upstream_cache_hits_total, srp_upstream_cache_misses_total (Counter)
//   - srp_upstream_cache_written_bytes_total (Counter)
//   - srp_upstream_cache_invalidations_total{class} (Counter)
//   - srp_upstream_cache_errors_total{operation} (Counter)
//
// Result cache (pkg/resultcache):
//   - srp_result_cache_hits_total, srp_result_cache_misses_total (Counter)
//   - srp_result_cache_evictions_total (Counter)
//
// Orchestrator (pkg/orchestrator):
//   - srp_orchestrator_outcomes_total{outcome} (Counter)
//   - srp_orchestrator_fetch_duration_seconds (Histogram)
//
// Invalidation (pkg/invalidation):
//   - srp_invalidation_events_total{source, result} (Counter)
//   - srp_invalidation_duration_seconds{source} (Histogram)
//
// Example Prometheus Queries:
//
//   # Upstream cache hit rate
//   sum(rate(srp_upstream_cache_hits_total[5m])) /
//   (sum(rate(srp_upstream_cache_hits_total[5m])) + sum(rate(srp_upstream_cache_misses_total[5m])))
//
//   # Superseded share of filter changes
//   rate(srp_orchestrator_outcomes_total{outcome="superseded"}[5m]) /
//   sum(rate(srp_orchestrator_outcomes_total[5m]))
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(srp_upstream_request_duration_seconds_bucket[5m]))
