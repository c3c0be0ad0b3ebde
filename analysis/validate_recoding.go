package analysis

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/survey"
)

// Check names reported on ValidationResult.Checks so retry prompts and
// logs can name what ran.
const (
	checkSourceExists     = "source_variable_exists"
	checkTargetConflicts  = "target_name_conflicts"
	checkRangeValidity    = "range_validity"
	checkDuplicateTargets = "duplicate_target_variables"
	checkCompleteness     = "transformation_completeness"
	checkDuplicateCodes   = "duplicate_target_codes"
	checkOverlaps         = "overlapping_sources"

	checkParse = "json_parse"
)

func (p *Pipeline) validateRecoding(_ context.Context, s State) pipeline.ValidationResult {
	res := ValidateRecoding(s.Metadata, s.Recoding.Rules, s.Recoding.ParseError)
	if !res.Passed && p.Metrics != nil {
		p.Metrics.IncrementValidationFailures(ArtifactRecoding)
	}
	return res
}

// ValidateRecoding runs the structural checks on a generated rule set
// against the full survey metadata.
func ValidateRecoding(meta *survey.Metadata, set *survey.RuleSet, parseError string) pipeline.ValidationResult {
	if set == nil {
		return unparsedResult(parseError)
	}

	res := pipeline.ValidationResult{
		Checks: []string{
			checkSourceExists, checkTargetConflicts, checkRangeValidity,
			checkDuplicateTargets, checkCompleteness, checkDuplicateCodes,
			checkOverlaps,
		},
	}

	if len(set.Rules) == 0 {
		res.Warnings = append(res.Warnings, "no recoding rules were generated")
		res.Passed = true
		return res
	}

	seen := make(map[string]int)
	dupReported := make(map[string]bool)
	for i, r := range set.Rules {
		ref := ruleRef(i, r)

		src, ok := meta.Lookup(r.SourceVariable)
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"%s: source variable %q does not exist in the survey", ref, r.SourceVariable))
		}

		if meta.Has(r.TargetVariable) {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"%s: target variable %q already exists and will be overwritten; consider %q",
				ref, r.TargetVariable, r.TargetVariable+"_rec"))
		}

		if j, dup := seen[r.TargetVariable]; dup {
			if !dupReported[r.TargetVariable] {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"target variable %q is produced by more than one rule (first rule %d)",
					r.TargetVariable, j+1))
				dupReported[r.TargetVariable] = true
			}
		} else {
			seen[r.TargetVariable] = i
		}

		if len(r.Transformations) == 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: has no transformations", ref))
			continue
		}

		if r.RangeBased() {
			for _, t := range r.Transformations {
				switch {
				case len(t.Source) != 2:
					res.Errors = append(res.Errors, fmt.Sprintf(
						"%s: range transformation needs [start, end], got %v", ref, t.Source))
				case t.Source[0] > t.Source[1]:
					res.Errors = append(res.Errors, fmt.Sprintf(
						"%s: range start %d is greater than end %d", ref, t.Source[0], t.Source[1]))
				case ok && outsideBounds(t.Source, src):
					res.Warnings = append(res.Warnings, fmt.Sprintf(
						"%s: range [%d, %d] extends outside the observed values of %q",
						ref, t.Source[0], t.Source[1], r.SourceVariable))
				}
			}
		} else if ok {
			if missing := uncoveredValues(r, src); len(missing) > 0 {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"%s: source values not covered by any transformation: %v", ref, missing))
			}
		}

		codes := make(map[int]bool)
		for _, t := range r.Transformations {
			if codes[t.Target] {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"%s: target code %d is assigned by more than one transformation", ref, t.Target))
				break
			}
			codes[t.Target] = true
		}

		if overlappingSources(r) {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"%s: transformations have overlapping source values", ref))
		}
	}

	res.Passed = len(res.Errors) == 0
	return res
}

func ruleRef(i int, r survey.RecodingRule) string {
	return fmt.Sprintf("rule %d (%s -> %s)",
		i+1, orUnnamed(r.SourceVariable), orUnnamed(r.TargetVariable))
}

func orUnnamed(name string) string {
	if name == "" {
		return "unnamed"
	}
	return name
}

// outsideBounds reports whether the range [lo, hi] extends past the
// observed min/max of the source variable. Unknown bounds never flag.
func outsideBounds(source []int, v survey.VariableMetadata) bool {
	if v.MinValue == nil || v.MaxValue == nil {
		return false
	}
	return float64(source[0]) < *v.MinValue || float64(source[1]) > *v.MaxValue
}

// uncoveredValues lists coded values of the source variable that no
// transformation of a discrete rule claims, in numeric order.
func uncoveredValues(r survey.RecodingRule, v survey.VariableMetadata) []int {
	if len(v.ValueLabels) == 0 {
		return nil
	}
	covered := make(map[int]bool)
	for _, t := range r.Transformations {
		for _, s := range t.Source {
			covered[s] = true
		}
	}
	var missing []int
	for key := range v.ValueLabels {
		code, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if !covered[code] {
			missing = append(missing, code)
		}
	}
	sort.Ints(missing)
	return missing
}

// overlappingSources reports whether two transformations of the same
// rule claim a common source value. Range rules compare spans, discrete
// rules compare value lists. Malformed ranges are skipped; range
// validity reports those separately.
func overlappingSources(r survey.RecodingRule) bool {
	if r.RangeBased() {
		type span struct{ lo, hi int }
		var spans []span
		for _, t := range r.Transformations {
			if len(t.Source) != 2 || t.Source[0] > t.Source[1] {
				continue
			}
			spans = append(spans, span{t.Source[0], t.Source[1]})
		}
		for i := 0; i < len(spans); i++ {
			for j := i + 1; j < len(spans); j++ {
				if spans[i].lo <= spans[j].hi && spans[j].lo <= spans[i].hi {
					return true
				}
			}
		}
		return false
	}

	seen := make(map[int]bool)
	for _, t := range r.Transformations {
		for _, s := range t.Source {
			if seen[s] {
				return true
			}
			seen[s] = true
		}
	}
	return false
}

// unparsedResult is the validation outcome when the model response never
// parsed as JSON. The parse message is surfaced as the error so the
// retry prompt tells the model what went wrong.
func unparsedResult(parseError string) pipeline.ValidationResult {
	msg := parseError
	if msg == "" {
		msg = "response was not valid JSON"
	}
	return pipeline.ValidationResult{
		Passed: false,
		Errors: []string{msg + "; return a single JSON object with the required keys"},
		Checks: []string{checkParse},
	}
}
