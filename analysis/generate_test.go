package analysis

import (
	"testing"

	"github.com/crosstab-io/surveyflow/survey"
)

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a": 1}`, `{"a": 1}`},
		{"fenced with tag", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced without tag", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\": 1}\n```\n  ", `{"a": 1}`},
		{"missing closing fence", "```json\n{\"a\": 1}", `{"a": 1}`},
		{"fence with no newline", "```", "```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFence(tt.in); got != tt.want {
				t.Errorf("stripFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeArtifact(t *testing.T) {
	t.Run("valid json", func(t *testing.T) {
		set, parseErr := decodeArtifact[survey.RuleSet]("```json\n" +
			`{"recoding_rules": [{"source_variable": "q1", "target_variable": "q1_band", "rule_type": "range"}]}` +
			"\n```")

		if parseErr != "" {
			t.Fatalf("unexpected parse error: %s", parseErr)
		}
		if set == nil || len(set.Rules) != 1 || set.Rules[0].TargetVariable != "q1_band" {
			t.Errorf("unexpected decode: %+v", set)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		set, parseErr := decodeArtifact[survey.RuleSet]("Here are the rules you asked for.")

		if set != nil {
			t.Errorf("expected nil artifact, got %+v", set)
		}
		if parseErr == "" {
			t.Error("expected a parse error message")
		}
	})
}
