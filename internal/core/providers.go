package core

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AIProvider interface {
	Chat(ctx context.Context, history []Message) (Message, error)
}

type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length,omitempty"`
}

// ModelLister is implemented by providers that can enumerate models. Used by
// the setup wizard and for cheap API-key validation.
type ModelLister interface {
	Models(ctx context.Context) ([]Model, error)
}

// KeySource resolves a plaintext API key for a provider. Implemented by the
// vault; a missing or undecryptable key yields ErrNoKey.
type KeySource interface {
	GetKey(ctx context.Context, provider string) (string, error)
}
