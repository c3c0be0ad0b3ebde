package survey

import "testing"

func TestRuleTypeValid(t *testing.T) {
	for _, rt := range []RuleType{RuleRange, RuleMapping, RuleDerived, RuleCategory} {
		if !rt.Valid() {
			t.Errorf("%q.Valid() = false, want true", rt)
		}
	}
	if RuleType("RANGE").Valid() {
		t.Error("rule types are lowercase, RANGE must not validate")
	}
	if RuleType("").Valid() {
		t.Error("empty rule type must not validate")
	}
}

func TestRecodingRuleDerived(t *testing.T) {
	rule := RecodingRule{
		SourceVariable: "q1",
		TargetVariable: "q1_grouped",
		RuleType:       RuleRange,
		Rationale:      "Satisfaction grouped",
		Transformations: []Transformation{
			{Source: []int{1, 2}, Target: 1, Label: "Low"},
			{Source: []int{3, 3}, Target: 2, Label: "Mid"},
			{Source: []int{4, 5}, Target: 3, Label: "High"},
		},
	}

	meta := rule.Derived()
	if meta.Name != "q1_grouped" {
		t.Errorf("Name = %q, want q1_grouped", meta.Name)
	}
	if meta.Label != "Satisfaction grouped" {
		t.Errorf("Label = %q, want the rationale", meta.Label)
	}
	if meta.Type != TypeNumeric {
		t.Errorf("Type = %q, want numeric", meta.Type)
	}
	if got := meta.ValueLabels["2"]; got != "Mid" {
		t.Errorf("ValueLabels[2] = %q, want Mid", got)
	}
	if meta.MinValue == nil || *meta.MinValue != 1 {
		t.Errorf("MinValue = %v, want 1", meta.MinValue)
	}
	if meta.MaxValue == nil || *meta.MaxValue != 3 {
		t.Errorf("MaxValue = %v, want 3", meta.MaxValue)
	}
}

func TestRecodingRuleDerivedLabelFallback(t *testing.T) {
	rule := RecodingRule{
		SourceVariable:  "q7",
		TargetVariable:  "q7_rec",
		RuleType:        RuleMapping,
		Transformations: []Transformation{{Source: []int{9}, Target: 1, Label: "Flagged"}},
	}
	if got := rule.Derived().Label; got != "q7 (recoded)" {
		t.Errorf("fallback label = %q, want %q", got, "q7 (recoded)")
	}
}

func TestRuleSetDerivedMetadata(t *testing.T) {
	set := RuleSet{Rules: []RecodingRule{
		{SourceVariable: "q1", TargetVariable: "q1_rec", RuleType: RuleRange},
		{SourceVariable: "q2", TargetVariable: "q2_top2", RuleType: RuleDerived},
	}}

	if got := set.Targets(); len(got) != 2 || got[0] != "q1_rec" || got[1] != "q2_top2" {
		t.Errorf("Targets() = %v, want [q1_rec q2_top2]", got)
	}

	derived := set.DerivedMetadata()
	if len(derived) != 2 {
		t.Fatalf("DerivedMetadata() returned %d entries, want 2", len(derived))
	}
	if derived[1].Name != "q2_top2" {
		t.Errorf("derived[1].Name = %q, want q2_top2", derived[1].Name)
	}
}
