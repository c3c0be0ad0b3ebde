package survey

import (
	"fmt"
	"strconv"
)

// RuleType classifies a recoding rule.
type RuleType string

const (
	// RuleRange groups continuous values into inclusive ranges.
	RuleRange RuleType = "range"
	// RuleMapping maps specific values to new values.
	RuleMapping RuleType = "mapping"
	// RuleDerived builds flag variables such as top-2-box.
	RuleDerived RuleType = "derived"
	// RuleCategory collapses categorical values into broader groups.
	RuleCategory RuleType = "category"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleRange, RuleMapping, RuleDerived, RuleCategory:
		return true
	}
	return false
}

// Transformation maps source values onto one target code. For range and
// derived rules a two-element Source holds the inclusive range start and
// end; for mapping and category rules Source lists the discrete values
// to collapse.
type Transformation struct {
	Source []int  `json:"source"`
	Target int    `json:"target"`
	Label  string `json:"label"`
}

// RecodingRule derives one new variable from an existing one.
type RecodingRule struct {
	SourceVariable  string           `json:"source_variable"`
	TargetVariable  string           `json:"target_variable"`
	RuleType        RuleType         `json:"rule_type"`
	Transformations []Transformation `json:"transformations"`
	Rationale       string           `json:"rationale,omitempty"`
}

// RangeBased reports whether the rule's transformations carry ranges
// rather than discrete value lists.
func (r RecodingRule) RangeBased() bool {
	return r.RuleType == RuleRange || r.RuleType == RuleDerived
}

// Derived returns the metadata entry describing the rule's target
// variable, for merging into the survey metadata after recoding runs.
func (r RecodingRule) Derived() VariableMetadata {
	label := r.Rationale
	if label == "" {
		label = fmt.Sprintf("%s (recoded)", r.SourceVariable)
	}

	meta := VariableMetadata{
		Name:        r.TargetVariable,
		Label:       label,
		Type:        TypeNumeric,
		ValueLabels: make(map[string]string, len(r.Transformations)),
	}
	for i, t := range r.Transformations {
		meta.ValueLabels[strconv.Itoa(t.Target)] = t.Label
		target := float64(t.Target)
		if i == 0 || target < *meta.MinValue {
			meta.MinValue = &target
		}
		if i == 0 || target > *meta.MaxValue {
			meta.MaxValue = &target
		}
	}
	return meta
}

// RuleSet is the recoding artifact produced by the generation step.
type RuleSet struct {
	Rules []RecodingRule `json:"recoding_rules"`
	Notes string         `json:"generation_notes,omitempty"`
}

// Targets returns the target variable names of all rules, in order.
func (s *RuleSet) Targets() []string {
	targets := make([]string, len(s.Rules))
	for i, r := range s.Rules {
		targets[i] = r.TargetVariable
	}
	return targets
}

// DerivedMetadata returns the metadata entries for every rule target.
func (s *RuleSet) DerivedMetadata() []VariableMetadata {
	derived := make([]VariableMetadata, len(s.Rules))
	for i, r := range s.Rules {
		derived[i] = r.Derived()
	}
	return derived
}
