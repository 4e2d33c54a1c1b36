package cache

import (
	"time"
)

// Entry represents a cached upstream response.
type Entry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// Tags are the fetch tags the response is indexed under
	Tags []string `json:"tags"`

	// Expires is when the entry becomes stale. Zero means it never expires on its own.
	Expires time.Time `json:"expires"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry for a successful response. A zero freshness interval
// caches indefinitely.
func NewEntry(data []byte, tags []string, freshness time.Duration) *Entry {
	now := time.Now()
	e := &Entry{
		Data:       data,
		Tags:       append([]string(nil), tags...),
		StatusCode: 200,
		CachedAt:   now,
	}
	if freshness > 0 {
		e.Expires = now.Add(freshness)
	}
	return e
}

// Indefinite reports whether the entry has no expiry.
func (e *Entry) Indefinite() bool {
	return e.Expires.IsZero()
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	if e.Indefinite() {
		return false
	}
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired or if the entry never expires.
func (e *Entry) TTL() time.Duration {
	if e.Indefinite() {
		return 0
	}
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
