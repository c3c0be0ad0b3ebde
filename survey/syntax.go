package survey

import (
	"fmt"
	"strconv"
	"strings"
)

// RecodingSyntax renders the PSPP syntax that applies rules to the
// data file at inPath and saves the result to outPath. Each rule
// becomes one RECODE ... INTO command followed by VARIABLE LABELS and
// VALUE LABELS for the derived variable.
func RecodingSyntax(rules []RecodingRule, inPath, outPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GET FILE=%s.\n\n", psppQuote(inPath))
	for _, r := range rules {
		parts := make([]string, 0, len(r.Transformations))
		for _, t := range r.Transformations {
			if spec := renderTransformation(r.RuleType, t); spec != "" {
				parts = append(parts, spec)
			}
		}
		if len(parts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "RECODE %s %s INTO %s.\n",
			r.SourceVariable, strings.Join(parts, " "), r.TargetVariable)
		fmt.Fprintf(&b, "VARIABLE LABELS %s %s.\n",
			r.TargetVariable, psppQuote(r.Derived().Label))
		if labels := renderValueLabels(r.Transformations); labels != "" {
			fmt.Fprintf(&b, "VALUE LABELS %s %s.\n", r.TargetVariable, labels)
		}
		b.WriteString("\n")
	}
	b.WriteString("EXECUTE.\n")
	fmt.Fprintf(&b, "SAVE OUTFILE=%s.\n", psppQuote(outPath))
	return b.String()
}

// renderTransformation renders one source-to-target mapping as a
// RECODE specification. Range and derived rules with a two-value
// source render as an inclusive THRU range; everything else renders
// its source values as a discrete list.
func renderTransformation(rt RuleType, t Transformation) string {
	switch {
	case len(t.Source) == 0:
		return ""
	case (rt == RuleRange || rt == RuleDerived) && len(t.Source) == 2:
		if t.Source[0] == t.Source[1] {
			return fmt.Sprintf("(%d=%d)", t.Source[0], t.Target)
		}
		return fmt.Sprintf("(%d THRU %d=%d)", t.Source[0], t.Source[1], t.Target)
	case len(t.Source) == 1:
		return fmt.Sprintf("(%d=%d)", t.Source[0], t.Target)
	default:
		vals := make([]string, len(t.Source))
		for i, v := range t.Source {
			vals[i] = strconv.Itoa(v)
		}
		return fmt.Sprintf("(%s=%d)", strings.Join(vals, ","), t.Target)
	}
}

func renderValueLabels(transformations []Transformation) string {
	var parts []string
	for _, t := range transformations {
		if t.Label == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d %s", t.Target, psppQuote(t.Label)))
	}
	return strings.Join(parts, " ")
}

// TableSyntax renders the PSPP syntax that computes every table in set
// against the data file at dataPath. Each table becomes one CROSSTABS
// command crossing the row indicators' variables with the column
// indicators' variables, with chi-square and Cramer's V statistics
// requested. Tables whose indicators resolve to no variables are
// skipped.
func TableSyntax(set TableSpecSet, indicators IndicatorSet, dataPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GET FILE=%s.\n", psppQuote(dataPath))
	if set.WeightingVariable != "" {
		fmt.Fprintf(&b, "WEIGHT BY %s.\n", set.WeightingVariable)
	}
	b.WriteString("\n")
	for _, t := range set.Tables {
		rows := indicators.Variables(t.RowIndicators)
		cols := indicators.Variables(t.ColumnIndicators)
		if len(rows) == 0 || len(cols) == 0 {
			continue
		}
		if desc := oneLine(t.Description); desc != "" {
			fmt.Fprintf(&b, "* %s: %s.\n", t.ID, strings.TrimSuffix(desc, "."))
		} else {
			fmt.Fprintf(&b, "* %s.\n", t.ID)
		}
		b.WriteString("CROSSTABS\n")
		fmt.Fprintf(&b, "  /TABLES=%s BY %s\n", strings.Join(rows, " "), strings.Join(cols, " "))
		b.WriteString("  /FORMAT=AVALUE TABLES\n")
		b.WriteString("  /CELLS=COUNT ROW COLUMN TOTAL\n")
		b.WriteString("  /STATISTICS=CHISQ PHI.\n\n")
	}
	b.WriteString("EXECUTE.\n")
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// psppQuote renders s as a PSPP string literal with embedded single
// quotes doubled.
func psppQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
