package model

import (
	"context"
	"sync"
)

// MockChatModel is a test implementation of ChatModel.
//
// It returns configured responses in order, records every call, and
// supports error injection:
//
//	mock := &MockChatModel{
//	    Responses: []ChatOut{
//	        {Text: `{"rules": []}`},
//	        {Text: `{"rules": [{"target_variable": "age_group"}]}`},
//	    },
//	}
//	out, err := mock.Chat(ctx, messages)
//	// First call returns the first response; once all responses are
//	// consumed the last one repeats.
type MockChatModel struct {
	// Responses contains the sequence of responses to return. Each
	// call to Chat returns the next response in order. When all
	// responses are consumed, the last response repeats.
	Responses []ChatOut

	// Err, if set, is returned by Chat instead of a response.
	Err error

	// Calls tracks the history of all Chat invocations.
	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records a single invocation of Chat.
type MockChatCall struct {
	Messages []Message
}

// Chat implements the ChatModel interface. The call is recorded in
// Calls regardless of success or failure.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockChatCall{Messages: messages})

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears the call history and resets the response index, so the
// same mock can serve multiple test cases.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of times Chat has been called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}

// LastCall returns the most recent recorded call, or false when Chat
// has not been called.
func (m *MockChatModel) LastCall() (MockChatCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Calls) == 0 {
		return MockChatCall{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}
