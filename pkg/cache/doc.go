// Package cache provides the tag-addressable upstream response cache with a Redis backend.
//
// Responses fetched from the inventory API are stored under a deterministic request key
// and indexed by their fetch tags. A tag groups related upstream resources (all catalog
// row requests, all facet requests, everything for one site) and is the unit of
// invalidation: dropping a tag drops every response stored under it.
//
// This cache sits below the in-memory session result cache and is orthogonal to it.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.RequestKey{
//		Method: http.MethodPost,
//		URL:    "https://inventory.example.com/v1/search",
//		Body:   payload,
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch upstream, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(body, tags, 5*time.Minute))
//	}
//
// # Invalidation
//
//	// Drop every cached catalog response.
//	removed, err := manager.InvalidateTags(ctx, "inventory")
//
// An entry created with a zero freshness interval is kept until a tag invalidation
// removes it.
//
// # Metrics
//
//   - srp_upstream_cache_hits_total - Cache hits
//   - srp_upstream_cache_misses_total - Cache misses
//   - srp_upstream_cache_written_bytes_total - Bytes written
//   - srp_upstream_cache_invalidations_total{class} - Entries removed by tag class
//   - srp_upstream_cache_errors_total{operation} - Cache operation errors
package cache
