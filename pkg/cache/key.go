package cache

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// RequestKey identifies one upstream request.
type RequestKey struct {
	// Method is the HTTP method (GET, POST)
	Method string

	// URL is the absolute request URL
	URL string

	// Body is the encoded request payload, if any
	Body []byte
}

// String generates a deterministic cache key string.
// Format: srp:resp:METHOD:host/path?sorted-query:body-digest
//
// Example:
//
//	srp:resp:POST:inventory.example.com/v1/search:9b1f0c3a5d2e7f41
func (k RequestKey) String() string {
	method := strings.ToUpper(k.Method)
	if method == "" {
		method = "GET"
	}

	target := k.URL
	if u, err := url.Parse(k.URL); err == nil {
		// Encode sorts query keys, so equivalent URLs share a key.
		target = u.Host + u.EscapedPath()
		if q := u.Query(); len(q) > 0 {
			target += "?" + q.Encode()
		}
	}

	return fmt.Sprintf("srp:resp:%s:%s:%016x", method, target, xxhash.Sum64(k.Body))
}

// tagKey is the Redis set holding every response key indexed under tag.
func tagKey(tag string) string {
	return "srp:tag:" + tag
}
