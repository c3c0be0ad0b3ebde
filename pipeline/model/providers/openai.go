package providers

import (
	"context"
	"errors"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/pipeline/model"
)

// DefaultOpenAIModel is used when no model name is given.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIModel adapts OpenAI's chat completion API to the ChatModel
// interface. Requests always enable JSON mode, since every generation
// step in this pipeline expects a JSON document back.
//
// Safe for concurrent use.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel creates a GPT-backed ChatModel. An empty apiKey falls
// back to the OPENAI_API_KEY environment variable.
func NewOpenAIModel(apiKey, modelName string) (*OpenAIModel, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, pipeline.NewExternalServiceError(NameOpenAI, "init", false,
			errMissingKey("OPENAI_API_KEY"))
	}
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIModel{
		client: &client,
		model:  modelName,
	}, nil
}

// Chat implements the ChatModel interface.
func (p *OpenAIModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		},
	}
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			params.Messages = append(params.Messages, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		case model.RoleAssistant:
			params.Messages = append(params.Messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		default:
			params.Messages = append(params.Messages, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, classify(NameOpenAI, "chat.completions.new", err)
	}
	if len(completion.Choices) == 0 {
		return model.ChatOut{}, pipeline.NewExternalServiceError(NameOpenAI, "chat.completions.new", true,
			errors.New("empty choices in completion response"))
	}

	return model.ChatOut{
		Text:  completion.Choices[0].Message.Content,
		Model: p.model,
		Usage: model.Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}, nil
}

// Model returns the configured model identifier.
func (p *OpenAIModel) Model() string {
	return p.model
}
