package analysis

import (
	"context"
	"fmt"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/survey"
)

const (
	checkTableIndicators = "indicator_ids_exist"
	checkRowColDisjoint  = "row_column_disjoint"
	checkWeighting       = "weighting_variable"
	checkSortOrders      = "sort_orders_valid"
	checkCramersV        = "cramers_v_threshold"
	checkMinCount        = "min_count_positive"
)

func (p *Pipeline) validateTableSpecs(_ context.Context, s State) pipeline.ValidationResult {
	res := ValidateTableSpecs(s.Metadata, s.Indicators.Set, s.Tables.Specs, s.Tables.ParseError)
	if !res.Passed && p.Metrics != nil {
		p.Metrics.IncrementValidationFailures(ArtifactTableSpecs)
	}
	return res
}

// ValidateTableSpecs checks generated cross-table specifications against
// the approved indicators and the survey metadata.
func ValidateTableSpecs(meta *survey.Metadata, indicators *survey.IndicatorSet, set *survey.TableSpecSet, parseError string) pipeline.ValidationResult {
	if set == nil {
		return unparsedResult(parseError)
	}

	res := pipeline.ValidationResult{
		Checks: []string{
			checkTableIndicators, checkRowColDisjoint, checkWeighting,
			checkSortOrders, checkCramersV, checkMinCount,
		},
	}

	if len(set.Tables) == 0 {
		res.Errors = append(res.Errors, "no tables were specified")
		return res
	}

	for i, spec := range set.Tables {
		ref := fmt.Sprintf("table %d (%s)", i+1, orUnnamed(spec.ID))

		if len(spec.RowIndicators) == 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: has no row indicators", ref))
		}
		if len(spec.ColumnIndicators) == 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: has no column indicators", ref))
		}

		rows := make(map[string]bool, len(spec.RowIndicators))
		for _, id := range spec.RowIndicators {
			rows[id] = true
			if indicators == nil || !hasIndicator(indicators, id) {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"%s: row indicator %q does not exist", ref, id))
			}
		}
		for _, id := range spec.ColumnIndicators {
			if indicators == nil || !hasIndicator(indicators, id) {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"%s: column indicator %q does not exist", ref, id))
			}
			if rows[id] {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"%s: indicator %q appears in both rows and columns", ref, id))
			}
		}

		if !spec.SortRows.Valid() {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"%s: unknown row sort order %q (use none, asc, or desc)", ref, spec.SortRows))
		}
		if !spec.SortColumns.Valid() {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"%s: unknown column sort order %q (use none, asc, or desc)", ref, spec.SortColumns))
		}

		if t := spec.CramersVThreshold; t != nil && (*t < 0 || *t > 1) {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"%s: Cramer's V threshold %g is outside [0, 1]", ref, *t))
		}
		if spec.MinCount < 0 {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"%s: minimum count %d is negative", ref, spec.MinCount))
		}
	}

	if w := set.WeightingVariable; w != "" {
		v, ok := meta.Lookup(w)
		switch {
		case !ok:
			res.Errors = append(res.Errors, fmt.Sprintf(
				"weighting variable %q does not exist in the survey", w))
		case v.Type != survey.TypeNumeric:
			res.Errors = append(res.Errors, fmt.Sprintf(
				"weighting variable %q is not numeric", w))
		}
	}

	res.Passed = len(res.Errors) == 0
	return res
}

func hasIndicator(set *survey.IndicatorSet, id string) bool {
	_, ok := set.Lookup(id)
	return ok
}
