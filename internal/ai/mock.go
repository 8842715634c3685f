package ai

import (
	"context"
	"sync"
)

// MockProvider returns canned replies in order and records every request.
// Once Replies is exhausted it keeps returning the last reply.
type MockProvider struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Calls   [][]Message
}

var (
	_ Provider     = (*MockProvider)(nil)
	_ JSONProvider = (*MockProvider)(nil)
)

func (m *MockProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, append([]Message(nil), messages...))
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Replies) == 0 {
		return "", nil
	}
	i := len(m.Calls) - 1
	if i >= len(m.Replies) {
		i = len(m.Replies) - 1
	}
	return m.Replies[i], nil
}

func (m *MockProvider) ChatJSON(ctx context.Context, messages []Message) (string, error) {
	return m.Chat(ctx, messages)
}
