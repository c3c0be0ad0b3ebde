// Package model provides LLM integration adapters.
//
// Generation steps talk to language models through the ChatModel
// interface. Concrete adapters for Anthropic, OpenAI, and Google live
// in the providers subpackage; MockChatModel serves tests. A
// UsageTracker accumulates token counts and estimated cost across a
// run.
package model

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one model call. Counts are zero
// when the provider does not report usage.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ChatOut is the result of a chat completion.
type ChatOut struct {
	// Text is the model's response. Generation steps expect a JSON
	// document here; adapters request JSON output where the API
	// supports it and instruct the model through the prompt where it
	// does not.
	Text string `json:"text"`

	// Model identifies the concrete model that served the call, used
	// for usage attribution.
	Model string `json:"model"`

	Usage Usage `json:"usage"`
}

// ChatModel is the interface all chat-based language models implement.
//
// Adapters translate transport and API failures into
// pipeline.ExternalServiceError so callers can distinguish transient
// failures (rate limits, timeouts) from permanent ones (bad
// credentials, exhausted quota).
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}
