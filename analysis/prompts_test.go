package analysis

import (
	"strings"
	"testing"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/survey"
)

func TestMetadataTable(t *testing.T) {
	table := metadataTable(analysisMeta())

	for _, want := range []string{
		"| Variable | Type | Label | Range/Values | Missing |",
		"| q1 | numeric | Overall satisfaction | 1 - 10 | None |",
		"| region | numeric | Region | 4 values | None |",
		"| comments | string | Other, please specify | N/A | None |",
	} {
		if !strings.Contains(table, want) {
			t.Errorf("metadata table missing %q:\n%s", want, table)
		}
	}
}

func TestMetadataTableMissingValues(t *testing.T) {
	meta := &survey.Metadata{Variables: []survey.VariableMetadata{
		{Name: "q2", Type: survey.TypeNumeric, MissingValues: []string{"98", "99"}},
	}}

	table := metadataTable(meta)
	if !strings.Contains(table, "| q2 | numeric | N/A | N/A | 2 values |") {
		t.Errorf("unexpected row rendering:\n%s", table)
	}
}

func TestValidationSection(t *testing.T) {
	t.Run("errors and warnings are numbered", func(t *testing.T) {
		got := validationSection(&pipeline.ValidationResult{
			Errors:   []string{"first problem", "second problem"},
			Warnings: []string{"a caution"},
		})
		for _, want := range []string{
			"**Critical Errors:**",
			"1. first problem",
			"2. second problem",
			"**Warnings:**",
			"1. a caution",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("section missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("clean result", func(t *testing.T) {
		if got := validationSection(&pipeline.ValidationResult{Passed: true}); got != "No validation errors found." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("nil result", func(t *testing.T) {
		if got := validationSection(nil); got != "No validation errors found." {
			t.Errorf("got %q", got)
		}
	})
}

func TestRecodingMessagesVariants(t *testing.T) {
	meta := analysisMeta()

	t.Run("initial", func(t *testing.T) {
		msgs := recodingMessages(meta, RecodingPhase{})

		if len(msgs) != 2 {
			t.Fatalf("got %d messages, want system + user", len(msgs))
		}
		if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "single JSON object") {
			t.Errorf("unexpected system message: %+v", msgs[0])
		}
		body := msgs[1].Content
		for _, want := range []string{
			"# Recoding Rules Generation",
			"## Variable Metadata",
			"| q1 |",
			"## Output Format",
			`"recoding_rules"`,
			`"generation_notes"`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("prompt missing %q", want)
			}
		}
		if strings.Contains(body, "Validation Errors") {
			t.Error("initial prompt should not mention validation errors")
		}
	})

	t.Run("validation retry", func(t *testing.T) {
		phase := RecodingPhase{
			Cycle: pipeline.ReviewCycle{
				Attempt:      1,
				FeedbackKind: pipeline.FeedbackValidation,
				Validation: &pipeline.ValidationResult{
					Errors: []string{`rule 1 (q9 -> q9_band): source variable "q9" does not exist in the survey`},
				},
			},
			Rules: &survey.RuleSet{Rules: []survey.RecodingRule{validRule()}},
		}

		body := recodingMessages(meta, phase)[1].Content
		for _, want := range []string{
			"# Recoding Rules - Validation Retry (attempt 2)",
			"## Validation Errors from Previous Attempt",
			"**Critical Errors:**",
			`1. rule 1 (q9 -> q9_band)`,
			"## Previous Rules",
			`"q1_band"`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("retry prompt missing %q", want)
			}
		}
	})

	t.Run("analyst revision", func(t *testing.T) {
		phase := RecodingPhase{
			Cycle: pipeline.ReviewCycle{
				FeedbackKind: pipeline.FeedbackHuman,
				Feedback:     "use three age bands instead of five",
			},
			Raw: `{"recoding_rules": []}`,
		}

		body := recodingMessages(meta, phase)[1].Content
		for _, want := range []string{
			"# Recoding Rules - Analyst Revision",
			"## Analyst Feedback",
			"use three age bands instead of five",
			"## Previous Rules",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("revision prompt missing %q", want)
			}
		}
	})
}

func TestIndicatorsMessagesIncludeRules(t *testing.T) {
	meta := analysisMeta()
	rules := &survey.RuleSet{Rules: []survey.RecodingRule{validRule()}}

	initial := indicatorsMessages(meta, rules, IndicatorsPhase{})[1].Content
	if !strings.Contains(initial, "## Approved Recoding Rules") {
		t.Error("initial prompt should include the approved recoding rules")
	}
	if !strings.Contains(initial, `"q1_band"`) {
		t.Error("initial prompt should render the rules as JSON")
	}

	retry := indicatorsMessages(meta, rules, IndicatorsPhase{
		Cycle: pipeline.ReviewCycle{FeedbackKind: pipeline.FeedbackValidation},
	})[1].Content
	if strings.Contains(retry, "## Approved Recoding Rules") {
		t.Error("retry prompt repeats the previous indicators, not the recoding context")
	}
	if !strings.Contains(retry, "## Previous Indicators") {
		t.Error("retry prompt should include the previous indicators")
	}
}

func TestTableSpecsMessagesWeighting(t *testing.T) {
	body := tableSpecsMessages(analysisMeta(), analysisIndicators(), TablesPhase{})[1].Content

	for _, want := range []string{
		"# Cross-Table Specifications Generation",
		"## Available Indicators",
		"- IND_001 (distribution):",
		"## Weighting Variables",
		"weight",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestWeightingCandidates(t *testing.T) {
	got := weightingCandidates(analysisMeta())
	if len(got) != 1 || got[0] != "weight" {
		t.Errorf("weightingCandidates = %v, want [weight]", got)
	}

	none := weightingCandidates(&survey.Metadata{Variables: []survey.VariableMetadata{
		{Name: "q1", Type: survey.TypeNumeric},
	}})
	if len(none) != 0 {
		t.Errorf("weightingCandidates = %v, want none", none)
	}
}

func TestPreviousArtifact(t *testing.T) {
	rules := &survey.RuleSet{Rules: []survey.RecodingRule{validRule()}}

	t.Run("parsed artifact renders as json", func(t *testing.T) {
		got := previousArtifact(rules, "ignored raw")
		if !strings.HasPrefix(got, "```json\n") || !strings.Contains(got, `"q1_band"`) {
			t.Errorf("got %q", got)
		}
	})

	t.Run("raw fallback", func(t *testing.T) {
		got := previousArtifact[survey.RuleSet](nil, "not json at all")
		if got != "```\nnot json at all\n```" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("nothing available", func(t *testing.T) {
		if got := previousArtifact[survey.RuleSet](nil, ""); got != "(no previous artifact)" {
			t.Errorf("got %q", got)
		}
	})
}
