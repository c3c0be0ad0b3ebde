package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/pipeline/model"
)

// DefaultGoogleModel is used when no model name is given.
const DefaultGoogleModel = "gemini-1.5-pro"

// GoogleModel adapts Google's Gemini API to the ChatModel interface.
// Responses are requested as application/json.
//
// The underlying client holds a connection; call Close when done.
type GoogleModel struct {
	client *genai.Client
	model  string
}

// NewGoogleModel creates a Gemini-backed ChatModel. An empty apiKey
// falls back to the GOOGLE_API_KEY environment variable.
func NewGoogleModel(ctx context.Context, apiKey, modelName string) (*GoogleModel, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, pipeline.NewExternalServiceError(NameGoogle, "init", false,
			errMissingKey("GOOGLE_API_KEY"))
	}
	if modelName == "" {
		modelName = DefaultGoogleModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GoogleModel{
		client: client,
		model:  modelName,
	}, nil
}

// Chat implements the ChatModel interface. System messages become the
// model's system instruction; the remaining messages are folded into a
// single prompt, since each generation here is a one-shot exchange
// rather than a chat session.
func (g *GoogleModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	gm := g.client.GenerativeModel(g.model)
	gm.ResponseMIMEType = "application/json"

	var system []genai.Part
	var prompt strings.Builder
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			system = append(system, genai.Text(m.Content))
			continue
		}
		if prompt.Len() > 0 {
			prompt.WriteString("\n\n")
		}
		prompt.WriteString(m.Content)
	}
	if len(system) > 0 {
		gm.SystemInstruction = &genai.Content{Parts: system}
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt.String()))
	if err != nil {
		return model.ChatOut{}, classify(NameGoogle, "generate_content", err)
	}

	out := model.ChatOut{Model: g.model}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	if len(resp.Candidates) == 0 {
		return model.ChatOut{}, pipeline.NewExternalServiceError(NameGoogle, "generate_content", true,
			errors.New("response has no candidates"))
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return model.ChatOut{}, pipeline.NewExternalServiceError(NameGoogle, "generate_content", true,
			errors.New("candidate has no content"))
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out.Text = text.String()
	return out, nil
}

// Model returns the configured model identifier.
func (g *GoogleModel) Model() string {
	return g.model
}

// Close releases the underlying client connection.
func (g *GoogleModel) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
