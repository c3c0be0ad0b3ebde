// Package providers contains ChatModel adapters for hosted LLM APIs.
//
// Three providers are supported: Anthropic (Claude), OpenAI (GPT), and
// Google (Gemini). All adapters speak the model.ChatModel interface and
// translate SDK failures into pipeline.ExternalServiceError, carrying a
// retryable flag so the engine backs off on transient failures and
// suspends immediately on permanent ones.
//
// API keys come from the conventional environment variables
// (ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY) when not passed
// explicitly.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crosstab-io/surveyflow/pipeline"
	"github.com/crosstab-io/surveyflow/pipeline/model"
)

// Provider names accepted by New.
const (
	NameAnthropic = "anthropic"
	NameOpenAI    = "openai"
	NameGoogle    = "google"
)

// New constructs the named provider. apiKey may be empty, in which case
// the provider's environment variable is consulted. modelName may be
// empty to use the provider's default model.
//
// The returned ChatModel may also implement io.Closer (Google does);
// callers that care about connection cleanup should check for it.
func New(ctx context.Context, provider, apiKey, modelName string) (model.ChatModel, error) {
	switch strings.ToLower(provider) {
	case NameAnthropic:
		return NewAnthropicModel(apiKey, modelName)
	case NameOpenAI:
		return NewOpenAIModel(apiKey, modelName)
	case NameGoogle:
		return NewGoogleModel(ctx, apiKey, modelName)
	default:
		return nil, fmt.Errorf("unknown model provider %q (want %s, %s, or %s)",
			provider, NameAnthropic, NameOpenAI, NameGoogle)
	}
}

// classify maps an SDK error onto the pipeline error taxonomy. The SDKs
// do not expose stable typed errors for every failure mode, so
// classification falls back to status codes and well-known substrings
// in the error text.
func classify(service, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pipeline.NewExternalServiceError(service, op, true, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	// Authentication failures are permanent until the key is fixed.
	case containsAny(msg, "401", "403", "unauthorized", "permission", "authentication", "api key", "api_key"):
		return pipeline.NewExternalServiceError(service, op, false, err)

	// Exhausted quota or billing problems need operator action.
	case containsAny(msg, "insufficient_quota", "quota exceeded", "billing"):
		return pipeline.NewExternalServiceError(service, op, false, err)

	// Rate limits and transient capacity problems clear on their own.
	case containsAny(msg, "429", "rate limit", "rate_limit", "too many requests", "resource_exhausted", "overloaded", "529"):
		return pipeline.NewExternalServiceError(service, op, true, err)

	case containsAny(msg, "timeout", "deadline", "unavailable", "connection", "500", "502", "503"):
		return pipeline.NewExternalServiceError(service, op, true, err)

	default:
		// Unrecognized failures are treated as transient.
		return pipeline.NewExternalServiceError(service, op, true, err)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func errMissingKey(envVar string) error {
	return fmt.Errorf("no API key provided and %s is not set", envVar)
}
