package providers

import (
	"context"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/pipeline/model"
)

// DefaultAnthropicModel is used when no model name is given.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// maxOutputTokens bounds completion length for all providers. The
// largest artifact the pipeline generates is a table specification set,
// which fits comfortably in this budget.
const maxOutputTokens = 8192

// AnthropicModel adapts Anthropic's Claude API to the ChatModel
// interface. Claude has no native JSON response mode, so generation
// prompts must instruct the model to emit bare JSON.
//
// Safe for concurrent use.
type AnthropicModel struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicModel creates a Claude-backed ChatModel. An empty apiKey
// falls back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicModel(apiKey, modelName string) (*AnthropicModel, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, pipeline.NewExternalServiceError(NameAnthropic, "init", false,
			errMissingKey("ANTHROPIC_API_KEY"))
	}
	if modelName == "" {
		modelName = DefaultAnthropicModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicModel{
		client: &client,
		model:  modelName,
	}, nil
}

// Chat implements the ChatModel interface.
func (a *AnthropicModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxOutputTokens,
	}
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case model.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, classify(NameAnthropic, "messages.new", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return model.ChatOut{
		Text:  text.String(),
		Model: a.model,
		Usage: model.Usage{
			InputTokens:  message.Usage.InputTokens,
			OutputTokens: message.Usage.OutputTokens,
		},
	}, nil
}

// Model returns the configured model identifier.
func (a *AnthropicModel) Model() string {
	return a.model
}
