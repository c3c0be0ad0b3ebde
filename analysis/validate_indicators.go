package analysis

import (
	"context"
	"fmt"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/survey"
)

const (
	checkIndicatorVars  = "variables_exist"
	checkMetricValid    = "metric_valid"
	checkUniqueIDs      = "unique_ids"
	checkVarsNonEmpty   = "variables_non_empty"
	checkTypeCompatible = "type_compatibility"
)

func (p *Pipeline) validateIndicators(_ context.Context, s State) pipeline.ValidationResult {
	res := ValidateIndicators(s.Metadata, s.Indicators.Set, s.Indicators.ParseError)
	if !res.Passed && p.Metrics != nil {
		p.Metrics.IncrementValidationFailures(ArtifactIndicators)
	}
	return res
}

// ValidateIndicators checks a generated indicator set against the full
// survey metadata, recoded variables included.
func ValidateIndicators(meta *survey.Metadata, set *survey.IndicatorSet, parseError string) pipeline.ValidationResult {
	if set == nil {
		return unparsedResult(parseError)
	}

	res := pipeline.ValidationResult{
		Checks: []string{
			checkIndicatorVars, checkMetricValid, checkUniqueIDs,
			checkVarsNonEmpty, checkTypeCompatible,
		},
	}

	if len(set.Indicators) == 0 {
		res.Errors = append(res.Errors, "no indicators were generated")
		return res
	}

	seen := make(map[string]bool)
	for i, ind := range set.Indicators {
		ref := fmt.Sprintf("indicator %d (%s)", i+1, orUnnamed(ind.ID))

		if ind.ID != "" && seen[ind.ID] {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: duplicate indicator id", ref))
		}
		seen[ind.ID] = true

		if !ind.Metric.Valid() {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"%s: unknown metric %q (use average, percentage, or distribution)", ref, ind.Metric))
		}

		if len(ind.UnderlyingVariables) == 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: has no underlying variables", ref))
			continue
		}

		for _, name := range ind.UnderlyingVariables {
			v, ok := meta.Lookup(name)
			if !ok {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"%s: variable %q does not exist in the survey", ref, name))
				continue
			}
			switch ind.Metric {
			case survey.MetricAverage:
				if v.Type != survey.TypeNumeric {
					res.Errors = append(res.Errors, fmt.Sprintf(
						"%s: average over non-numeric variable %q", ref, name))
				}
			case survey.MetricPercentage:
				if v.Type != survey.TypeNumeric {
					res.Warnings = append(res.Warnings, fmt.Sprintf(
						"%s: percentage over non-numeric variable %q", ref, name))
				}
			}
		}
	}

	res.Passed = len(res.Errors) == 0
	return res
}
