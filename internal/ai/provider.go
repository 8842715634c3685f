package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// JSONProvider is an optional interface. Providers that can force a JSON
// object response (response_format / format=json) implement it.
type JSONProvider interface {
	ChatJSON(ctx context.Context, messages []Message) (string, error)
}
