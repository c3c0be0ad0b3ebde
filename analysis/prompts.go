package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/pipeline/model"
	"github.com/crosstab-io/surveyflow/survey"
)

// System prompts for the three generation steps. Every prompt demands a
// bare JSON object because not every provider supports a JSON response
// mode.
const (
	recodingSystem = "You are an expert in survey data analysis and variable recoding. " +
		"You design recoding rules that prepare survey variables for statistical analysis. " +
		"Respond with a single JSON object and nothing else."

	indicatorsSystem = "You are an expert in survey analysis and indicator construction. " +
		"You design composite measures that capture the key constructs of a survey. " +
		"Respond with a single JSON object and nothing else."

	tableSpecsSystem = "You are an expert in survey analysis and cross-tabulation design. " +
		"You specify cross-tabulations that reveal meaningful relationships in survey data. " +
		"Respond with a single JSON object and nothing else."
)

const recodingSchema = `Return a JSON object with this structure:

{
  "recoding_rules": [
    {
      "source_variable": "original_var_name",
      "target_variable": "new_var_name",
      "rule_type": "range|mapping|derived|category",
      "transformations": [
        {"source": [value_or_range], "target": target_value, "label": "Human readable label"}
      ],
      "rationale": "Why this recoding helps the analysis"
    }
  ],
  "generation_notes": "Notes about the decisions made"
}

A two-value source [start, end] is an inclusive range for range and derived
rules; mapping and category rules list the discrete values to collapse.`

const indicatorsSchema = `Return a JSON object with this structure:

{
  "indicators": [
    {
      "id": "IND_001",
      "description": "What this indicator measures and why it is useful",
      "metric": "average|percentage|distribution",
      "underlying_variables": ["var1", "var2"]
    }
  ],
  "generation_notes": "Notes about indicator design decisions"
}

Metric selection: average for numeric rating scales, percentage for binary
0/1 variables, distribution for categoricals. Every id must be unique and
every indicator needs at least one underlying variable.`

const tableSpecsSchema = `Return a JSON object with this structure:

{
  "tables": [
    {
      "id": "TABLE_001",
      "description": "What the table shows and why it is useful",
      "row_indicators": ["IND_001"],
      "column_indicators": ["IND_002"],
      "sort_rows": "none|asc|desc",
      "sort_columns": "none|asc|desc",
      "min_count": 30
    }
  ],
  "weighting_variable": "weight_var_name"
}

Pair indicators that have a logical relationship, put demographics in the
columns, and never use an indicator in both rows and columns of the same
table. Keep min_count at 30 unless there is a reason to change it. Omit
weighting_variable when the survey is unweighted.`

// recodingMessages builds the chat exchange for recoding generation. The
// cycle's feedback kind picks the variant: initial generation, repair
// after failed validation, or revision after an analyst rejection.
func recodingMessages(meta *survey.Metadata, phase RecodingPhase) []model.Message {
	var b strings.Builder

	switch phase.Cycle.FeedbackKind {
	case pipeline.FeedbackValidation:
		fmt.Fprintf(&b, "# Recoding Rules - Validation Retry (attempt %d)\n\n", phase.Cycle.Attempt+1)
		b.WriteString("Your previous recoding rules failed validation. Review the errors below and return corrected rules.\n\n")
	case pipeline.FeedbackHuman:
		b.WriteString("# Recoding Rules - Analyst Revision\n\n")
		b.WriteString("An analyst reviewed your recoding rules and asked for changes. Revise the rules to address their feedback.\n\n")
	default:
		b.WriteString("# Recoding Rules Generation\n\n")
		b.WriteString("Design recoding rules for the survey variables below. Generate rules only " +
			"for variables that benefit from recoding: range groupings for continuous scales " +
			"(standard cohorts, no gaps, no overlaps), value mappings for scale reversal or " +
			"consolidation, derived flags such as top-2-box, and category groupings for long " +
			"categorical lists. Use descriptive target variable names.\n\n")
	}

	b.WriteString("## Variable Metadata\n\n")
	b.WriteString(metadataTable(meta))
	b.WriteString("\n\n")

	switch phase.Cycle.FeedbackKind {
	case pipeline.FeedbackValidation:
		b.WriteString("## Validation Errors from Previous Attempt\n\n")
		b.WriteString(validationSection(phase.Cycle.Validation))
		b.WriteString("\n\n## Previous Rules\n\n")
		b.WriteString(previousArtifact(phase.Rules, phase.Raw))
		b.WriteString("\n\nAddress every error listed: source variables must exist in the metadata, " +
			"ranges need start <= end, target variable names must be unique, and transformations " +
			"within a rule must not overlap.\n\n")
	case pipeline.FeedbackHuman:
		b.WriteString("## Analyst Feedback\n\n")
		b.WriteString(phase.Cycle.Feedback)
		b.WriteString("\n\n## Previous Rules\n\n")
		b.WriteString(previousArtifact(phase.Rules, phase.Raw))
		b.WriteString("\n\n")
	}

	b.WriteString("## Output Format\n\n")
	b.WriteString(recodingSchema)

	return []model.Message{
		{Role: model.RoleSystem, Content: recodingSystem},
		{Role: model.RoleUser, Content: b.String()},
	}
}

// indicatorsMessages builds the chat exchange for indicator generation.
// The approved recoding rules are included so the model can reference
// derived variables.
func indicatorsMessages(meta *survey.Metadata, rules *survey.RuleSet, phase IndicatorsPhase) []model.Message {
	var b strings.Builder

	switch phase.Cycle.FeedbackKind {
	case pipeline.FeedbackValidation:
		fmt.Fprintf(&b, "# Indicator Construction - Validation Retry (attempt %d)\n\n", phase.Cycle.Attempt+1)
		b.WriteString("Your previous indicators failed validation. Review the errors below and return corrected indicators.\n\n")
	case pipeline.FeedbackHuman:
		b.WriteString("# Indicator Construction - Analyst Revision\n\n")
		b.WriteString("An analyst reviewed your indicators and asked for changes. Revise them to address the feedback.\n\n")
	default:
		b.WriteString("# Indicator Construction\n\n")
		b.WriteString("Design meaningful indicators (composite measures) for statistical analysis " +
			"of the survey variables below: satisfaction indices over related rating scales, " +
			"multiple-response sets over binary flags, and distributions for demographics and " +
			"other categoricals.\n\n")
	}

	b.WriteString("## Available Variables\n\n")
	b.WriteString(metadataTable(meta))
	b.WriteString("\n\n")

	if rules != nil && len(rules.Rules) > 0 && phase.Cycle.FeedbackKind == pipeline.FeedbackNone {
		b.WriteString("## Approved Recoding Rules\n\n")
		b.WriteString("These recoded variables exist and may be referenced by name:\n\n")
		b.WriteString(previousArtifact(rules, ""))
		b.WriteString("\n\n")
	}

	switch phase.Cycle.FeedbackKind {
	case pipeline.FeedbackValidation:
		b.WriteString("## Validation Errors from Previous Attempt\n\n")
		b.WriteString(validationSection(phase.Cycle.Validation))
		b.WriteString("\n\n## Previous Indicators\n\n")
		b.WriteString(previousArtifact(phase.Set, phase.Raw))
		b.WriteString("\n\nAddress every error listed: underlying variables must exist, metrics must " +
			"be one of average, percentage, or distribution, and ids must be unique.\n\n")
	case pipeline.FeedbackHuman:
		b.WriteString("## Analyst Feedback\n\n")
		b.WriteString(phase.Cycle.Feedback)
		b.WriteString("\n\n## Previous Indicators\n\n")
		b.WriteString(previousArtifact(phase.Set, phase.Raw))
		b.WriteString("\n\n")
	}

	b.WriteString("## Output Format\n\n")
	b.WriteString(indicatorsSchema)

	return []model.Message{
		{Role: model.RoleSystem, Content: indicatorsSystem},
		{Role: model.RoleUser, Content: b.String()},
	}
}

// tableSpecsMessages builds the chat exchange for table-specification
// generation over the approved indicators.
func tableSpecsMessages(meta *survey.Metadata, indicators *survey.IndicatorSet, phase TablesPhase) []model.Message {
	var b strings.Builder

	switch phase.Cycle.FeedbackKind {
	case pipeline.FeedbackValidation:
		fmt.Fprintf(&b, "# Cross-Table Specifications - Validation Retry (attempt %d)\n\n", phase.Cycle.Attempt+1)
		b.WriteString("Your previous table specifications failed validation. Review the errors below and return corrected specifications.\n\n")
	case pipeline.FeedbackHuman:
		b.WriteString("# Cross-Table Specifications - Analyst Revision\n\n")
		b.WriteString("An analyst reviewed your table specifications and asked for changes. Revise them to address the feedback.\n\n")
	default:
		b.WriteString("# Cross-Table Specifications Generation\n\n")
		b.WriteString("Specify the cross-tabulations to compute over the indicators below. " +
			"Prioritize tables that answer key research questions: metrics against " +
			"demographic segments, awareness against region, and similar pairings with a " +
			"plausible association worth a chi-square test.\n\n")
	}

	b.WriteString("## Available Indicators\n\n")
	b.WriteString(indicatorLines(indicators))
	b.WriteString("\n\n")

	if candidates := weightingCandidates(meta); len(candidates) > 0 {
		b.WriteString("## Weighting Variables\n\n")
		fmt.Fprintf(&b, "These variables appear to be survey weights: %s. Name one as the weighting_variable if the analysis should be weighted.\n\n",
			strings.Join(candidates, ", "))
	}

	switch phase.Cycle.FeedbackKind {
	case pipeline.FeedbackValidation:
		b.WriteString("## Validation Errors from Previous Attempt\n\n")
		b.WriteString(validationSection(phase.Cycle.Validation))
		b.WriteString("\n\n## Previous Specifications\n\n")
		b.WriteString(previousArtifact(phase.Specs, phase.Raw))
		b.WriteString("\n\nAddress every error listed: indicator ids must exist, rows and columns must " +
			"not share an indicator, sort orders must be none, asc, or desc, and thresholds must be in range.\n\n")
	case pipeline.FeedbackHuman:
		b.WriteString("## Analyst Feedback\n\n")
		b.WriteString(phase.Cycle.Feedback)
		b.WriteString("\n\n## Previous Specifications\n\n")
		b.WriteString(previousArtifact(phase.Specs, phase.Raw))
		b.WriteString("\n\n")
	}

	b.WriteString("## Output Format\n\n")
	b.WriteString(tableSpecsSchema)

	return []model.Message{
		{Role: model.RoleSystem, Content: tableSpecsSystem},
		{Role: model.RoleUser, Content: b.String()},
	}
}

// metadataTable renders variable metadata as the markdown table every
// generation prompt embeds.
func metadataTable(meta *survey.Metadata) string {
	var b strings.Builder
	b.WriteString("| Variable | Type | Label | Range/Values | Missing |\n")
	b.WriteString("|----------|------|-------|--------------|---------|\n")
	for _, v := range meta.Variables {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			v.Name, v.Type, orNA(v.Label), rangeColumn(v), missingColumn(v))
	}
	return strings.TrimRight(b.String(), "\n")
}

func rangeColumn(v survey.VariableMetadata) string {
	if v.Type == survey.TypeNumeric && v.MinValue != nil && v.MaxValue != nil {
		return fmt.Sprintf("%g - %g", *v.MinValue, *v.MaxValue)
	}
	if len(v.Categories) > 0 {
		return fmt.Sprintf("%d categories", len(v.Categories))
	}
	if len(v.ValueLabels) > 0 {
		return fmt.Sprintf("%d values", len(v.ValueLabels))
	}
	return "N/A"
}

func missingColumn(v survey.VariableMetadata) string {
	if len(v.MissingValues) == 0 {
		return "None"
	}
	return fmt.Sprintf("%d values", len(v.MissingValues))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// validationSection renders a failed validation as the numbered error
// report the retry prompts embed.
func validationSection(res *pipeline.ValidationResult) string {
	if res == nil || (len(res.Errors) == 0 && len(res.Warnings) == 0) {
		return "No validation errors found."
	}
	var b strings.Builder
	if len(res.Errors) > 0 {
		b.WriteString("**Critical Errors:**\n")
		for i, e := range res.Errors {
			fmt.Fprintf(&b, "%d. %s\n", i+1, e)
		}
	}
	if len(res.Warnings) > 0 {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("**Warnings:**\n")
		for i, w := range res.Warnings {
			fmt.Fprintf(&b, "%d. %s\n", i+1, w)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// previousArtifact renders the prior artifact as a fenced JSON block for
// the retry and revision prompts. The raw model text stands in when the
// artifact never parsed.
func previousArtifact[T any](v *T, raw string) string {
	if v != nil {
		if data, err := json.MarshalIndent(v, "", "  "); err == nil {
			return "```json\n" + string(data) + "\n```"
		}
	}
	if raw == "" {
		return "(no previous artifact)"
	}
	return "```\n" + raw + "\n```"
}

// indicatorLines renders the indicator set as the compact list the
// table-specification prompt embeds.
func indicatorLines(set *survey.IndicatorSet) string {
	var b strings.Builder
	for _, ind := range set.Indicators {
		fmt.Fprintf(&b, "- %s (%s): %s [variables: %s]\n",
			ind.ID, ind.Metric, ind.Description, strings.Join(ind.UnderlyingVariables, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// weightingCandidates lists variables whose name or label mentions a
// survey weight.
func weightingCandidates(meta *survey.Metadata) []string {
	var names []string
	for _, v := range meta.Variables {
		if strings.Contains(strings.ToLower(v.Name), "weight") ||
			strings.Contains(strings.ToLower(v.Label), "weight") {
			names = append(names, v.Name)
		}
	}
	return names
}
