package survey

import (
	"strings"
	"testing"
)

func TestSignificancePolicyEvaluate(t *testing.T) {
	policy := DefaultSignificancePolicy()
	spec := TableSpec{ID: "TABLE_001"}

	tests := []struct {
		name     string
		tab      CrossTab
		spec     TableSpec
		wantKeep bool
		wantWarn bool
	}{
		{
			name:     "significant with adequate base",
			tab:      CrossTab{TableID: "TABLE_001", PValue: 0.01, CramersV: 0.3, N: 500},
			spec:     spec,
			wantKeep: true,
		},
		{
			name:     "p value above alpha",
			tab:      CrossTab{TableID: "TABLE_001", PValue: 0.2, CramersV: 0.3, N: 500},
			spec:     spec,
			wantKeep: false,
		},
		{
			name:     "effect size below floor",
			tab:      CrossTab{TableID: "TABLE_001", PValue: 0.01, CramersV: 0.05, N: 500},
			spec:     spec,
			wantKeep: false,
		},
		{
			name:     "significant but base too small",
			tab:      CrossTab{TableID: "TABLE_001", PValue: 0.01, CramersV: 0.3, N: 12},
			spec:     spec,
			wantKeep: false,
			wantWarn: true,
		},
		{
			name:     "boundary values kept",
			tab:      CrossTab{TableID: "TABLE_001", PValue: 0.05, CramersV: 0.1, N: 30},
			spec:     spec,
			wantKeep: true,
		},
		{
			name:     "spec raises effect size floor",
			tab:      CrossTab{TableID: "TABLE_002", PValue: 0.01, CramersV: 0.3, N: 500},
			spec:     TableSpec{ID: "TABLE_002", CramersVThreshold: floatPtr(0.5)},
			wantKeep: false,
		},
		{
			name:     "spec lowers minimum base",
			tab:      CrossTab{TableID: "TABLE_003", PValue: 0.01, CramersV: 0.3, N: 12},
			spec:     TableSpec{ID: "TABLE_003", MinCount: 10},
			wantKeep: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keep, warning := policy.Evaluate(tt.tab, tt.spec)
			if keep != tt.wantKeep {
				t.Errorf("keep = %v, want %v", keep, tt.wantKeep)
			}
			if (warning != "") != tt.wantWarn {
				t.Errorf("warning = %q, wantWarn %v", warning, tt.wantWarn)
			}
		})
	}
}

func TestSignificanceWarningNamesTable(t *testing.T) {
	policy := DefaultSignificancePolicy()
	tab := CrossTab{
		TableID:        "TABLE_004",
		RowVariable:    "q1_rec",
		ColumnVariable: "region",
		PValue:         0.02,
		CramersV:       0.25,
		N:              8,
	}
	_, warning := policy.Evaluate(tab, TableSpec{ID: "TABLE_004"})
	if !strings.Contains(warning, "TABLE_004") {
		t.Errorf("warning %q does not name the table", warning)
	}
	if !strings.Contains(warning, "q1_rec") || !strings.Contains(warning, "region") {
		t.Errorf("warning %q does not name the crossed variables", warning)
	}
}

func TestTableSpecEffectiveMinCount(t *testing.T) {
	if got := (&TableSpec{}).EffectiveMinCount(); got != 30 {
		t.Errorf("default EffectiveMinCount() = %d, want 30", got)
	}
	if got := (&TableSpec{MinCount: 50}).EffectiveMinCount(); got != 50 {
		t.Errorf("EffectiveMinCount() = %d, want 50", got)
	}
}
