package cache

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks upstream response cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "srp_upstream_cache_hits_total",
			Help: "Total number of upstream response cache hits",
		},
	)

	// CacheMisses tracks upstream response cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "srp_upstream_cache_misses_total",
			Help: "Total number of upstream response cache misses",
		},
	)

	// CacheBytesWritten tracks bytes written to the upstream response cache
	CacheBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "srp_upstream_cache_written_bytes_total",
			Help: "Total bytes written to the upstream response cache",
		},
	)

	// CacheInvalidations tracks entries removed by tag invalidation
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srp_upstream_cache_invalidations_total",
			Help: "Total number of upstream cache entries removed by tag class",
		},
		[]string{"class"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srp_upstream_cache_errors_total",
			Help: "Total number of upstream cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "invalidate"
	)
)

var knownTagClasses = map[string]struct{}{
	"inventory": {},
	"facets":    {},
	"srp":       {},
	"vdp":       {},
	"dealer":    {},
	"content":   {},
	"custom":    {},
}

// TagClass returns the metric label for tag. Scoped tags such as "site:demo" are
// labelled by their prefix; unknown tags share "other".
func TagClass(tag string) string {
	if prefix, _, ok := strings.Cut(tag, ":"); ok && prefix != "" {
		return prefix
	}
	if _, ok := knownTagClasses[tag]; ok {
		return tag
	}
	return "other"
}
