package survey

import "testing"

func testIndicatorSet() IndicatorSet {
	return IndicatorSet{
		Indicators: []Indicator{
			{
				ID:                  "overall_satisfaction",
				Metric:              MetricAverage,
				UnderlyingVariables: []string{"q1", "q2"},
			},
			{
				ID:                  "would_recommend",
				Metric:              MetricPercentage,
				UnderlyingVariables: []string{"q3"},
			},
			{
				ID:                  "usage_frequency",
				Metric:              MetricDistribution,
				UnderlyingVariables: []string{"q2", "q4"},
			},
		},
	}
}

func TestIndicatorSet_Lookup(t *testing.T) {
	set := testIndicatorSet()

	ind, ok := set.Lookup("would_recommend")
	if !ok {
		t.Fatal("Lookup(would_recommend) not found")
	}
	if ind.Metric != MetricPercentage {
		t.Errorf("metric = %q", ind.Metric)
	}

	if _, ok := set.Lookup("missing"); ok {
		t.Error("Lookup(missing) reported found")
	}
}

func TestIndicatorSet_IDs(t *testing.T) {
	set := testIndicatorSet()
	want := []string{"overall_satisfaction", "would_recommend", "usage_frequency"}

	ids := set.IDs()
	if len(ids) != len(want) {
		t.Fatalf("IDs = %v", ids)
	}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], id)
		}
	}
}

func TestIndicatorSet_Variables(t *testing.T) {
	set := testIndicatorSet()

	t.Run("union preserves first-seen order", func(t *testing.T) {
		// q2 appears in both indicators and must be listed once.
		got := set.Variables([]string{"overall_satisfaction", "usage_frequency"})
		want := []string{"q1", "q2", "q4"}
		if len(got) != len(want) {
			t.Fatalf("Variables = %v, want %v", got, want)
		}
		for i, v := range want {
			if got[i] != v {
				t.Errorf("vars[%d] = %q, want %q", i, got[i], v)
			}
		}
	})

	t.Run("unknown ids are skipped", func(t *testing.T) {
		got := set.Variables([]string{"missing", "would_recommend"})
		if len(got) != 1 || got[0] != "q3" {
			t.Errorf("Variables = %v, want [q3]", got)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := set.Variables(nil); len(got) != 0 {
			t.Errorf("Variables(nil) = %v", got)
		}
	})
}

func TestMetric_Valid(t *testing.T) {
	for _, m := range []Metric{MetricAverage, MetricPercentage, MetricDistribution} {
		if !m.Valid() {
			t.Errorf("%q reported invalid", m)
		}
	}
	for _, m := range []Metric{"", "sum", "median"} {
		if m.Valid() {
			t.Errorf("%q reported valid", m)
		}
	}
}
