package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/pipeline/model"
	"github.com/crosstab-io/surveyflow/survey"
)

// chat sends the messages to the configured model and records usage
// against the step.
func (p *Pipeline) chat(ctx context.Context, stepID string, messages []model.Message) (model.ChatOut, error) {
	if p.Config.ModelTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.Config.ModelTimeoutSeconds)*time.Second)
		defer cancel()
	}
	out, err := p.Model.Chat(ctx, messages)
	if err != nil {
		return model.ChatOut{}, err
	}
	if p.Usage != nil {
		p.Usage.Record(out.Model, stepID, out.Usage)
	}
	if p.Metrics != nil {
		p.Metrics.RecordTokens(out.Model, out.Usage.InputTokens, out.Usage.OutputTokens)
	}
	return out, nil
}

func (p *Pipeline) generateRecoding(ctx context.Context, s State) pipeline.Result[State] {
	if s.Filtered == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf("recoding generation requires filtered metadata")}
	}
	out, err := p.chat(ctx, StepGenerateRecoding, recodingMessages(s.Filtered, s.Recoding))
	if err != nil {
		return pipeline.Result[State]{Err: err}
	}
	s.Recoding.Raw = out.Text
	s.Recoding.Rules, s.Recoding.ParseError = decodeArtifact[survey.RuleSet](out.Text)
	return pipeline.Result[State]{State: s}
}

func (p *Pipeline) generateIndicators(ctx context.Context, s State) pipeline.Result[State] {
	if s.Filtered == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf("indicator generation requires filtered metadata")}
	}
	out, err := p.chat(ctx, StepGenerateIndicators, indicatorsMessages(s.Filtered, s.Recoding.Rules, s.Indicators))
	if err != nil {
		return pipeline.Result[State]{Err: err}
	}
	s.Indicators.Raw = out.Text
	s.Indicators.Set, s.Indicators.ParseError = decodeArtifact[survey.IndicatorSet](out.Text)
	return pipeline.Result[State]{State: s}
}

func (p *Pipeline) generateTableSpecs(ctx context.Context, s State) pipeline.Result[State] {
	if s.Filtered == nil || s.Indicators.Set == nil {
		return pipeline.Result[State]{Err: pipeline.Fatalf("table specification requires approved indicators")}
	}
	out, err := p.chat(ctx, StepGenerateTableSpecs, tableSpecsMessages(s.Filtered, s.Indicators.Set, s.Tables))
	if err != nil {
		return pipeline.Result[State]{Err: err}
	}
	s.Tables.Raw = out.Text
	s.Tables.Specs, s.Tables.ParseError = decodeArtifact[survey.TableSpecSet](out.Text)
	return pipeline.Result[State]{State: s}
}

// decodeArtifact parses a model response into the artifact type. A parse
// failure is not an error: the raw text and the parse message are kept on
// the state so validation can route the loop back to generation.
func decodeArtifact[T any](text string) (*T, string) {
	var v T
	if err := json.Unmarshal([]byte(stripFence(text)), &v); err != nil {
		return nil, err.Error()
	}
	return &v, ""
}

// stripFence removes a surrounding markdown code fence, tolerating a
// language tag on the opening line. Models add these despite every prompt
// asking for bare JSON.
func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	rest := trimmed[3:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[i+1:]
	} else {
		return trimmed
	}
	if i := strings.LastIndex(rest, "```"); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}
