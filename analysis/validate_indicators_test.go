package analysis

import (
	"testing"

	"github.com/crosstab-io/surveyflow/survey"
)

func TestValidateIndicators(t *testing.T) {
	valid := func() survey.Indicator {
		return survey.Indicator{
			ID:                  "IND_001",
			Description:         "Satisfaction with the service",
			Metric:              survey.MetricAverage,
			UnderlyingVariables: []string{"q1"},
		}
	}

	tests := []struct {
		name     string
		set      *survey.IndicatorSet
		wantPass bool
		wantErr  string
		wantWarn string
	}{
		{
			name:     "valid set passes",
			set:      &survey.IndicatorSet{Indicators: []survey.Indicator{valid()}},
			wantPass: true,
		},
		{
			name: "unknown variable",
			set: &survey.IndicatorSet{Indicators: []survey.Indicator{{
				ID: "IND_001", Metric: survey.MetricDistribution,
				UnderlyingVariables: []string{"q42"},
			}}},
			wantErr: `variable "q42" does not exist`,
		},
		{
			name: "unknown metric",
			set: &survey.IndicatorSet{Indicators: []survey.Indicator{{
				ID: "IND_001", Metric: "median",
				UnderlyingVariables: []string{"q1"},
			}}},
			wantErr: `unknown metric "median" (use average, percentage, or distribution)`,
		},
		{
			name: "duplicate ids",
			set: &survey.IndicatorSet{Indicators: []survey.Indicator{
				valid(),
				{ID: "IND_001", Metric: survey.MetricDistribution, UnderlyingVariables: []string{"region"}},
			}},
			wantErr: "duplicate indicator id",
		},
		{
			name: "no underlying variables",
			set: &survey.IndicatorSet{Indicators: []survey.Indicator{{
				ID: "IND_001", Metric: survey.MetricAverage,
			}}},
			wantErr: "has no underlying variables",
		},
		{
			name: "average over non-numeric",
			set: &survey.IndicatorSet{Indicators: []survey.Indicator{{
				ID: "IND_001", Metric: survey.MetricAverage,
				UnderlyingVariables: []string{"comments"},
			}}},
			wantErr: `average over non-numeric variable "comments"`,
		},
		{
			name: "percentage over non-numeric warns",
			set: &survey.IndicatorSet{Indicators: []survey.Indicator{{
				ID: "IND_001", Metric: survey.MetricPercentage,
				UnderlyingVariables: []string{"comments"},
			}}},
			wantPass: true,
			wantWarn: `percentage over non-numeric variable "comments"`,
		},
		{
			name:    "empty set fails",
			set:     &survey.IndicatorSet{},
			wantErr: "no indicators were generated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateIndicators(analysisMeta(), tt.set, "")
			if res.Passed != tt.wantPass {
				t.Fatalf("Passed = %v, want %v (errors: %v)", res.Passed, tt.wantPass, res.Errors)
			}
			if tt.wantErr != "" && !hasSubstring(res.Errors, tt.wantErr) {
				t.Errorf("errors %v missing %q", res.Errors, tt.wantErr)
			}
			if tt.wantWarn != "" && !hasSubstring(res.Warnings, tt.wantWarn) {
				t.Errorf("warnings %v missing %q", res.Warnings, tt.wantWarn)
			}
		})
	}
}

func TestValidateIndicatorsUnparsed(t *testing.T) {
	res := ValidateIndicators(analysisMeta(), nil, "unexpected end of JSON input")
	if res.Passed {
		t.Fatal("unparsed response should not pass")
	}
	if !hasSubstring(res.Errors, "unexpected end of JSON input") {
		t.Errorf("errors %v should carry the parse message", res.Errors)
	}
}
