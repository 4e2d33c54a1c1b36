package filter

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeConditions(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "empty means all", input: nil, want: []string{"certified", "new", "used"}},
		{name: "unknown only means all", input: []string{"salvage"}, want: []string{"certified", "new", "used"}},
		{name: "new only", input: []string{"new"}, want: []string{"new"}},
		{name: "used implies certified", input: []string{"used"}, want: []string{"certified", "used"}},
		{name: "certified only", input: []string{"certified"}, want: []string{"certified"}},
		{name: "new and used", input: []string{"used", "new"}, want: []string{"certified", "new", "used"}},
		{name: "case and whitespace", input: []string{" New ", "USED"}, want: []string{"certified", "new", "used"}},
		{name: "duplicates collapse", input: []string{"new", "new"}, want: []string{"new"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeConditions(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeConditions(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestState_Normalize(t *testing.T) {
	var s State
	s.Set(FieldYear, "2020", "2022", "2021", "2022")
	s.Set(FieldBody, "suv", " sedan ", "")
	s.Set(Field("unknown"), "x")
	s.Set(FieldCondition, "used")
	s.SetRange(RangePrice, Range{Max: Amount(30000)})
	s.SetFlag(FlagInStock, true)
	s.Flags[FlagOneOwner] = false

	n := s.Normalize()

	if got, want := n.Values(FieldYear), []string{"2022", "2021", "2020"}; !reflect.DeepEqual(got, want) {
		t.Errorf("year = %v, want %v", got, want)
	}
	if got, want := n.Values(FieldBody), []string{"sedan", "suv"}; !reflect.DeepEqual(got, want) {
		t.Errorf("body = %v, want %v", got, want)
	}
	if n.Has(Field("unknown")) {
		t.Error("unknown field should be dropped")
	}
	if got, want := n.Values(FieldCondition), []string{"certified", "used"}; !reflect.DeepEqual(got, want) {
		t.Errorf("condition = %v, want %v", got, want)
	}
	if _, ok := n.Flags[FlagOneOwner]; ok {
		t.Error("cleared flag should be dropped")
	}
	if r := n.Ranges[RangePrice]; r.Max == nil || *r.Max != 30000 {
		t.Errorf("price range = %+v, want max 30000", r)
	}

	// Normalize must not mutate the input.
	if got := s.Values(FieldYear); got[0] != "2020" {
		t.Errorf("input mutated: year = %v", got)
	}
}

func TestState_Normalize_StripsCommas(t *testing.T) {
	var s State
	s.Set(FieldMake, "Foo, Inc", "Foo Inc", "a,,b")

	if got, want := s.Normalize().Values(FieldMake), []string{"Foo Inc", "a b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("make = %v, want %v", got, want)
	}
}

func TestState_Canonical_OrderIndependent(t *testing.T) {
	var a, b State
	a.Set(FieldMake, "toyota", "honda")
	a.Set(FieldBody, "suv", "truck")
	a.SetFlag(FlagInTransit, true)
	a.SetRange(RangeMileage, Range{Min: Amount(0), Max: Amount(50000)})

	b.SetRange(RangeMileage, Range{Min: Amount(0), Max: Amount(50000)})
	b.SetFlag(FlagInTransit, true)
	b.Set(FieldBody, "truck", "suv")
	b.Set(FieldMake, "honda", "toyota")

	if a.Canonical() != b.Canonical() {
		t.Errorf("Canonical differs:\n a=%s\n b=%s", a.Canonical(), b.Canonical())
	}
	if !Equal(a, b) {
		t.Error("Equal(a, b) = false, want true")
	}
}

func TestState_Canonical_Format(t *testing.T) {
	var s State
	s.Set(FieldCondition, "new")
	s.Set(FieldMake, "land rover")
	s.SetRange(RangePrice, Range{Min: Amount(1000.5)})
	s.MonthlyPayment = Amount(450)
	s.SetFlag(FlagOnSpecial, true)
	s.Search = "tow hitch"

	want := "condition=new|make=land+rover|price=1000.5..|monthly_payment=450|flags=on_special|search=tow+hitch"
	if got := s.Canonical(); got != want {
		t.Errorf("Canonical() = %q, want %q", got, want)
	}
}

func TestState_Canonical_Distinguishes(t *testing.T) {
	var a, b State
	a.Set(FieldMake, "ford")
	b.Set(FieldModel, "ford")
	if a.Canonical() == b.Canonical() {
		t.Error("different fields must not collide")
	}

	var c, d State
	c.Set(FieldMake, "a,b")
	d.Set(FieldMake, "a", "b")
	if c.Canonical() == d.Canonical() {
		t.Error("embedded separators must not collide")
	}
}

func TestState_Clone(t *testing.T) {
	var s State
	s.Set(FieldMake, "ford")
	s.SetRange(RangePrice, Range{Min: Amount(1)})
	s.SetFlag(FlagInStock, true)

	c := s.Clone()
	c.Terms[FieldMake][0] = "kia"
	*c.Ranges[RangePrice].Min = 99
	c.Flags[FlagInStock] = false

	if s.Terms[FieldMake][0] != "ford" {
		t.Error("Clone shares term slices")
	}
	if *s.Ranges[RangePrice].Min != 1 {
		t.Error("Clone shares range bounds")
	}
	if !s.Flags[FlagInStock] {
		t.Error("Clone shares flags")
	}
}

func TestState_Conditions(t *testing.T) {
	var s State
	cs := s.Conditions()
	if !cs.New || !cs.Used || !cs.Certified {
		t.Errorf("empty state conditions = %+v, want all", cs)
	}
	if got := strings.Join(cs.Values(), ","); got != "certified,new,used" {
		t.Errorf("Values() = %s", got)
	}
}
