// Package address converts between a filter state and the canonical search-results
// address: a fixed slot path (condition, optional make, optional model) plus a query
// string holding every other filter.
package address

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/Sternrassler/srp-filter/pkg/filter"
)

// Path slugs for conditions.
const (
	SlugNew       = "new-vehicles"
	SlugUsed      = "used-vehicles"
	SlugCertified = "certified"
)

// Query parameter names that are not filter fields.
const (
	ParamCondition      = "condition"
	ParamSortBy         = "sort_by"
	ParamOrder          = "order"
	ParamSearch         = "search"
	ParamPage           = "page"
	ParamMonthlyPayment = "monthly_payment"
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// DefaultOrder is omitted from addresses.
const DefaultOrder = OrderAsc

// Sort selects the result ordering. An empty By means the upstream default.
type Sort struct {
	By    string `json:"sort_by,omitempty"`
	Order string `json:"order,omitempty"`
}

// Address is the canonical path + query representation of a filter state.
type Address struct {
	PathSegments []string          `json:"path_segments"`
	QueryParams  map[string]string `json:"query_params"`
	Normalized   filter.State      `json:"normalized"`
}

// Build computes the address for state. The state is normalised first; the normalised
// form is returned alongside the path and query.
func Build(state filter.State, s Sort) Address {
	n := state.Normalize()
	query := make(map[string]string)

	segments := conditionSegments(n.Conditions(), query)

	makePromoted := false
	if makes := n.Values(filter.FieldMake); len(makes) > 0 {
		if slug, ok := promotable(makes[0]); ok {
			segments = append(segments, slug)
			makePromoted = true
			makes = makes[1:]
		}
		setJoined(query, string(filter.FieldMake), makes)
	}

	if models := n.Values(filter.FieldModel); len(models) > 0 {
		if makePromoted {
			if slug, ok := promotable(models[0]); ok {
				segments = append(segments, slug)
				models = models[1:]
			}
		}
		setJoined(query, string(filter.FieldModel), models)
	}

	for _, f := range filter.Fields {
		switch f {
		case filter.FieldCondition, filter.FieldMake, filter.FieldModel:
			continue
		}
		setJoined(query, string(f), n.Values(f))
	}

	for _, f := range filter.RangeFields {
		r, ok := n.Ranges[f]
		if !ok {
			continue
		}
		if r.Min != nil {
			query[string(f)+"_min"] = filter.FormatNumber(*r.Min)
		}
		if r.Max != nil {
			query[string(f)+"_max"] = filter.FormatNumber(*r.Max)
		}
	}

	if n.MonthlyPayment != nil {
		query[ParamMonthlyPayment] = filter.FormatNumber(*n.MonthlyPayment)
	}

	for _, f := range filter.Flags {
		if n.Flags[f] {
			query[string(f)] = "true"
		}
	}

	if n.Search != "" {
		query[ParamSearch] = n.Search
	}

	if s.By != "" {
		query[ParamSortBy] = s.By
		if order := strings.ToLower(s.Order); order != "" && order != DefaultOrder {
			query[ParamOrder] = order
		}
	}

	return Address{
		PathSegments: segments,
		QueryParams:  query,
		Normalized:   n,
	}
}

// conditionSegments maps the normalised condition set onto its path slugs and records
// the new-vehicles query marker when new is combined with used or certified.
func conditionSegments(cs filter.ConditionSet, query map[string]string) []string {
	var segments []string
	switch {
	case cs.Used:
		segments = []string{SlugUsed}
	case cs.Certified:
		segments = []string{SlugUsed, SlugCertified}
	default:
		segments = []string{SlugNew}
	}
	if cs.New && (cs.Used || cs.Certified) {
		query[ParamCondition] = filter.ConditionNew
	}
	return segments
}

// promotable returns the path slug for a make or model value. Values whose slug
// collides with a condition slug stay in the query, where Parse cannot mistake them.
func promotable(value string) (string, bool) {
	slug := Slug(value)
	if slug == "" || isConditionSlug(slug) {
		return "", false
	}
	return slug, true
}

func setJoined(query map[string]string, key string, values []string) {
	if len(values) == 0 {
		return
	}
	query[key] = strings.Join(values, ",")
}

// Path renders the path with leading and trailing slashes.
func (a Address) Path() string {
	if len(a.PathSegments) == 0 {
		return "/"
	}
	return "/" + strings.Join(a.PathSegments, "/") + "/"
}

// Query renders the query string with keys sorted. Commas separating multi-values are
// kept literal.
func (a Address) Query() string {
	if len(a.QueryParams) == 0 {
		return ""
	}
	keys := make([]string, 0, len(a.QueryParams))
	for k := range a.QueryParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.ReplaceAll(url.QueryEscape(a.QueryParams[k]), "%2C", ",")
		parts = append(parts, url.QueryEscape(k)+"="+v)
	}
	return strings.Join(parts, "&")
}

// String renders the full address: /{path}/?{query}.
func (a Address) String() string {
	if q := a.Query(); q != "" {
		return a.Path() + "?" + q
	}
	return a.Path()
}

// Equal reports whether a and b render the same path and query.
func (a Address) Equal(b Address) bool {
	return a.String() == b.String()
}

// WithPage returns a copy of a carrying the page parameter. Page 1 is omitted.
func (a Address) WithPage(page int) Address {
	query := make(map[string]string, len(a.QueryParams)+1)
	for k, v := range a.QueryParams {
		query[k] = v
	}
	delete(query, ParamPage)
	if page > 1 {
		query[ParamPage] = strconv.Itoa(page)
	}
	a.QueryParams = query
	a.PathSegments = append([]string(nil), a.PathSegments...)
	return a
}
