// Package filter defines the in-memory filter state of the vehicle search-results page
// and the business rules every consumer relies on (condition normalisation, per-field
// value ordering, deterministic canonical form).
package filter

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Field is a set-valued filter name.
type Field string

// Set-valued filter vocabulary.
const (
	FieldCondition     Field = "condition"
	FieldYear          Field = "year"
	FieldMake          Field = "make"
	FieldModel         Field = "model"
	FieldTrim          Field = "trim"
	FieldBody          Field = "body"
	FieldFuelType      Field = "fuel_type"
	FieldTransmission  Field = "transmission"
	FieldEngine        Field = "engine"
	FieldDrivetrain    Field = "drivetrain"
	FieldDoors         Field = "doors"
	FieldExteriorColor Field = "exterior_color"
	FieldInteriorColor Field = "interior_color"
	FieldDealer        Field = "dealer"
	FieldState         Field = "state"
	FieldCity          Field = "city"
	FieldFeatures      Field = "features"
)

// Fields lists every set-valued filter in canonical order.
var Fields = []Field{
	FieldCondition, FieldYear, FieldMake, FieldModel, FieldTrim, FieldBody,
	FieldFuelType, FieldTransmission, FieldEngine, FieldDrivetrain, FieldDoors,
	FieldExteriorColor, FieldInteriorColor, FieldDealer, FieldState, FieldCity,
	FieldFeatures,
}

// Valid reports whether f belongs to the known vocabulary.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// Descending reports whether values of f are ordered high to low.
func (f Field) Descending() bool {
	return f == FieldYear
}

// RangeField is a numeric range filter name.
type RangeField string

// Range filter vocabulary.
const (
	RangePrice   RangeField = "price"
	RangeMileage RangeField = "mileage"
)

// RangeFields lists every range filter in canonical order.
var RangeFields = []RangeField{RangePrice, RangeMileage}

// Flag is a boolean status filter.
type Flag string

// Status flags.
const (
	FlagInStock   Flag = "in_stock"
	FlagInTransit Flag = "in_transit"
	FlagOnSpecial Flag = "on_special"
	FlagOneOwner  Flag = "one_owner"
)

// Flags lists every status flag in canonical order.
var Flags = []Flag{FlagInStock, FlagInTransit, FlagOnSpecial, FlagOneOwner}

// Range is an optional numeric interval. Either bound may be absent.
type Range struct {
	Min *float64 `json:"min,omitempty" schema:"min"`
	Max *float64 `json:"max,omitempty" schema:"max"`
}

// Empty reports whether neither bound is set.
func (r Range) Empty() bool {
	return r.Min == nil && r.Max == nil
}

// Amount returns a pointer to v, for building ranges and payment caps.
func Amount(v float64) *float64 {
	return &v
}

// State is the filter state of one search-results view.
type State struct {
	Terms          map[Field][]string   `json:"terms,omitempty"`
	Ranges         map[RangeField]Range `json:"ranges,omitempty"`
	MonthlyPayment *float64             `json:"monthly_payment,omitempty"`
	Flags          map[Flag]bool        `json:"flags,omitempty"`
	Search         string               `json:"search,omitempty"`
}

// Values returns the values of a set-valued filter.
func (s State) Values(f Field) []string {
	return s.Terms[f]
}

// Has reports whether f carries at least one value.
func (s State) Has(f Field) bool {
	return len(s.Terms[f]) > 0
}

// Set replaces the values of a set-valued filter. An empty list removes the filter.
// Commas inside a value do not survive Normalize.
func (s *State) Set(f Field, values ...string) *State {
	if len(values) == 0 {
		delete(s.Terms, f)
		return s
	}
	if s.Terms == nil {
		s.Terms = make(map[Field][]string)
	}
	s.Terms[f] = append([]string(nil), values...)
	return s
}

// SetRange replaces a range filter. An empty range removes the filter.
func (s *State) SetRange(f RangeField, r Range) *State {
	if r.Empty() {
		delete(s.Ranges, f)
		return s
	}
	if s.Ranges == nil {
		s.Ranges = make(map[RangeField]Range)
	}
	s.Ranges[f] = r
	return s
}

// SetFlag sets or clears a status flag.
func (s *State) SetFlag(f Flag, on bool) *State {
	if !on {
		delete(s.Flags, f)
		return s
	}
	if s.Flags == nil {
		s.Flags = make(map[Flag]bool)
	}
	s.Flags[f] = true
	return s
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{Search: s.Search}
	if s.Terms != nil {
		out.Terms = make(map[Field][]string, len(s.Terms))
		for f, v := range s.Terms {
			out.Terms[f] = append([]string(nil), v...)
		}
	}
	if s.Ranges != nil {
		out.Ranges = make(map[RangeField]Range, len(s.Ranges))
		for f, r := range s.Ranges {
			var c Range
			if r.Min != nil {
				c.Min = Amount(*r.Min)
			}
			if r.Max != nil {
				c.Max = Amount(*r.Max)
			}
			out.Ranges[f] = c
		}
	}
	if s.MonthlyPayment != nil {
		out.MonthlyPayment = Amount(*s.MonthlyPayment)
	}
	if s.Flags != nil {
		out.Flags = make(map[Flag]bool, len(s.Flags))
		for f, on := range s.Flags {
			out.Flags[f] = on
		}
	}
	return out
}

// Normalize returns the rule-consistent form of s: unknown fields dropped, values
// trimmed and stripped of commas, deduplicated and ordered per field, empty entries removed, and the
// condition invariant applied.
func (s State) Normalize() State {
	out := State{
		Terms:  make(map[Field][]string),
		Search: s.Search,
	}

	for f, values := range s.Terms {
		if !f.Valid() || f == FieldCondition {
			continue
		}
		if v := SortValues(f, dedupe(values)); len(v) > 0 {
			out.Terms[f] = v
		}
	}
	out.Terms[FieldCondition] = NormalizeConditions(s.Terms[FieldCondition])

	for _, f := range RangeFields {
		r, ok := s.Ranges[f]
		if !ok || r.Empty() {
			continue
		}
		if out.Ranges == nil {
			out.Ranges = make(map[RangeField]Range)
		}
		out.Ranges[f] = r
	}

	if s.MonthlyPayment != nil {
		out.MonthlyPayment = Amount(*s.MonthlyPayment)
	}

	for _, f := range Flags {
		if s.Flags[f] {
			if out.Flags == nil {
				out.Flags = make(map[Flag]bool)
			}
			out.Flags[f] = true
		}
	}

	return out
}

// Canonical renders s as a deterministic string. Two states holding the same values per
// field produce the same string regardless of construction order.
//
// Format: field=v1,v2|range=min..max|payment=n|flags=a,b|search=text
func (s State) Canonical() string {
	n := s.Normalize()
	parts := make([]string, 0, len(n.Terms)+4)

	for _, f := range Fields {
		values, ok := n.Terms[f]
		if !ok {
			continue
		}
		escaped := make([]string, len(values))
		for i, v := range values {
			escaped[i] = url.QueryEscape(v)
		}
		parts = append(parts, string(f)+"="+strings.Join(escaped, ","))
	}

	for _, f := range RangeFields {
		r, ok := n.Ranges[f]
		if !ok {
			continue
		}
		parts = append(parts, string(f)+"="+formatBound(r.Min)+".."+formatBound(r.Max))
	}

	if n.MonthlyPayment != nil {
		parts = append(parts, "monthly_payment="+FormatNumber(*n.MonthlyPayment))
	}

	if len(n.Flags) > 0 {
		on := make([]string, 0, len(n.Flags))
		for _, f := range Flags {
			if n.Flags[f] {
				on = append(on, string(f))
			}
		}
		parts = append(parts, "flags="+strings.Join(on, ","))
	}

	if n.Search != "" {
		parts = append(parts, "search="+url.QueryEscape(n.Search))
	}

	return strings.Join(parts, "|")
}

// Equal reports whether a and b normalise to the same state.
func Equal(a, b State) bool {
	return a.Canonical() == b.Canonical()
}

// SortValues orders values in place for field f and returns them.
// year sorts descending, every other field ascending.
func SortValues(f Field, values []string) []string {
	if f.Descending() {
		sort.Sort(sort.Reverse(sort.StringSlice(values)))
	} else {
		sort.Strings(values)
	}
	return values
}

// FormatNumber renders a float without trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBound(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatNumber(*v)
}

// cleanValue trims v and replaces commas, which separate values in addresses, with
// spaces. Runs of whitespace collapse to one space.
func cleanValue(v string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(v, ",", " ")), " ")
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = cleanValue(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
