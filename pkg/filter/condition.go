package filter

import (
	"sort"
	"strings"
)

// Vehicle conditions.
const (
	ConditionNew       = "new"
	ConditionUsed      = "used"
	ConditionCertified = "certified"
)

// AllConditions is the condition set implied when none is supplied.
var AllConditions = []string{ConditionCertified, ConditionNew, ConditionUsed}

// NormalizeConditions applies the condition invariant: used implies certified, and an
// empty (or entirely unknown) selection means every condition. The result is sorted
// ascending and never empty.
func NormalizeConditions(values []string) []string {
	var hasNew, hasUsed, hasCertified bool
	for _, v := range values {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case ConditionNew:
			hasNew = true
		case ConditionUsed:
			hasUsed = true
		case ConditionCertified:
			hasCertified = true
		}
	}

	if !hasNew && !hasUsed && !hasCertified {
		return append([]string(nil), AllConditions...)
	}
	if hasUsed {
		hasCertified = true
	}

	out := make([]string, 0, 3)
	if hasCertified {
		out = append(out, ConditionCertified)
	}
	if hasNew {
		out = append(out, ConditionNew)
	}
	if hasUsed {
		out = append(out, ConditionUsed)
	}
	sort.Strings(out)
	return out
}

// ConditionSet is a decoded condition selection.
type ConditionSet struct {
	New       bool
	Used      bool
	Certified bool
}

// Conditions decodes the normalised condition selection of s.
func (s State) Conditions() ConditionSet {
	var cs ConditionSet
	for _, v := range NormalizeConditions(s.Terms[FieldCondition]) {
		switch v {
		case ConditionNew:
			cs.New = true
		case ConditionUsed:
			cs.Used = true
		case ConditionCertified:
			cs.Certified = true
		}
	}
	return cs
}

// Values returns the selection as a sorted condition list.
func (cs ConditionSet) Values() []string {
	var out []string
	if cs.Certified {
		out = append(out, ConditionCertified)
	}
	if cs.New {
		out = append(out, ConditionNew)
	}
	if cs.Used {
		out = append(out, ConditionUsed)
	}
	return out
}
