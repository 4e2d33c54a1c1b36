package address

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/schema"

	"github.com/Sternrassler/srp-filter/pkg/filter"
)

// ErrInvalidAddress is returned when an address does not match the slot grammar.
// Callers surface it as "not found"; it is never repaired by guessing.
var ErrInvalidAddress = errors.New("invalid address")

// Parse is the inverse of Build for the path part of an address.
//
// Leading condition slugs are consumed first; "used-vehicles/certified" means certified
// only. At most one make and one model follow. The address is invalid when no
// condition slug leads or when segments are left over.
func Parse(segments []string) (filter.State, bool) {
	segments = compact(segments)

	var conditions []string
	i := 0
	for i < len(segments) {
		c, ok := conditionForSlug(segments[i])
		if !ok {
			break
		}
		conditions = append(conditions, c)
		i++
	}
	if len(conditions) == 0 {
		return filter.State{}, false
	}
	if len(conditions) >= 2 && conditions[0] == filter.ConditionUsed && conditions[1] == filter.ConditionCertified {
		conditions = conditions[1:]
	}

	var state filter.State
	state.Set(filter.FieldCondition, filter.NormalizeConditions(conditions)...)

	slots := []filter.Field{filter.FieldMake, filter.FieldModel}
	for _, f := range slots {
		if i >= len(segments) || isConditionSlug(segments[i]) {
			break
		}
		state.Set(f, strings.ToLower(segments[i]))
		i++
	}

	if i < len(segments) {
		return filter.State{}, false
	}
	return state, true
}

// ParsePath splits an address path into its non-empty segments.
func ParsePath(path string) []string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	return compact(strings.Split(path, "/"))
}

func compact(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func conditionForSlug(segment string) (string, bool) {
	switch strings.ToLower(segment) {
	case SlugNew:
		return filter.ConditionNew, true
	case SlugUsed:
		return filter.ConditionUsed, true
	case SlugCertified:
		return filter.ConditionCertified, true
	default:
		return "", false
	}
}

func isConditionSlug(segment string) bool {
	_, ok := conditionForSlug(segment)
	return ok
}

// queryParams holds the scalar query parameters decoded by gorilla/schema.
// Set-valued filters are comma-split separately.
type queryParams struct {
	SortBy         string   `schema:"sort_by"`
	Order          string   `schema:"order"`
	Search         string   `schema:"search"`
	Page           int      `schema:"page"`
	PriceMin       *float64 `schema:"price_min"`
	PriceMax       *float64 `schema:"price_max"`
	MileageMin     *float64 `schema:"mileage_min"`
	MileageMax     *float64 `schema:"mileage_max"`
	MonthlyPayment *float64 `schema:"monthly_payment"`
	InStock        bool     `schema:"in_stock"`
	InTransit      bool     `schema:"in_transit"`
	OnSpecial      bool     `schema:"on_special"`
	OneOwner       bool     `schema:"one_owner"`
}

var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
}

// Query is the decoded query half of an address.
type Query struct {
	State filter.State
	Sort  Sort
	Page  int
}

// ParseQuery decodes the query parameters of an address. The condition parameter
// is returned as part of State and must be merged with the path conditions.
func ParseQuery(values url.Values) (Query, error) {
	var p queryParams
	if err := decoder.Decode(&p, values); err != nil {
		return Query{}, fmt.Errorf("%w: decode query: %v", ErrInvalidAddress, err)
	}

	var state filter.State
	for _, f := range filter.Fields {
		if raw := values.Get(string(f)); raw != "" {
			state.Set(f, strings.Split(raw, ",")...)
		}
	}

	state.SetRange(filter.RangePrice, filter.Range{Min: p.PriceMin, Max: p.PriceMax})
	state.SetRange(filter.RangeMileage, filter.Range{Min: p.MileageMin, Max: p.MileageMax})
	state.MonthlyPayment = p.MonthlyPayment
	state.SetFlag(filter.FlagInStock, p.InStock)
	state.SetFlag(filter.FlagInTransit, p.InTransit)
	state.SetFlag(filter.FlagOnSpecial, p.OnSpecial)
	state.SetFlag(filter.FlagOneOwner, p.OneOwner)
	state.Search = p.Search

	q := Query{State: state, Page: p.Page}
	if p.SortBy != "" {
		q.Sort = Sort{By: p.SortBy, Order: p.Order}
		if q.Sort.Order == "" {
			q.Sort.Order = DefaultOrder
		}
	}
	return q, nil
}

// ParseURL decodes a full address (path and query) into a normalised filter state.
// Conditions from the path and the condition query marker are unioned; promoted
// make/model values are merged with the remaining query values.
func ParseURL(path string, values url.Values) (Query, error) {
	pathState, ok := Parse(ParsePath(path))
	if !ok {
		return Query{}, ErrInvalidAddress
	}

	q, err := ParseQuery(values)
	if err != nil {
		return Query{}, err
	}

	merged := q.State.Clone()
	for _, f := range []filter.Field{filter.FieldCondition, filter.FieldMake, filter.FieldModel} {
		vals := append(append([]string(nil), pathState.Values(f)...), q.State.Values(f)...)
		merged.Set(f, vals...)
	}
	q.State = merged.Normalize()
	return q, nil
}
