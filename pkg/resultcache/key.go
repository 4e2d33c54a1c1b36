package resultcache

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/srp-filter/pkg/filter"
	"github.com/cespare/xxhash/v2"
)

// Key identifies one result set: normalised filters, sort, search text and page.
type Key struct {
	Filters string
	SortBy  string
	Order   string
	Search  string
	Page    int
}

// NewKey builds the key for state. The search text is taken from state; value order
// within a field does not affect the key.
func NewKey(state filter.State, sortBy, order string, page int) Key {
	n := state.Normalize()
	search := n.Search
	n.Search = ""

	if page < 1 {
		page = 1
	}
	if sortBy == "" {
		order = ""
	}
	return Key{
		Filters: n.Canonical(),
		SortBy:  sortBy,
		Order:   strings.ToLower(order),
		Search:  search,
		Page:    page,
	}
}

// String renders the key deterministically.
//
// Format: filters#sort_by:order#search#page
func (k Key) String() string {
	return fmt.Sprintf("%s#%s:%s#%s#%d", k.Filters, k.SortBy, k.Order, k.Search, k.Page)
}

// Digest is a short hash of the key for logs.
func (k Key) Digest() string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(k.String()))
}
