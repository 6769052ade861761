package llm

import (
	"fmt"

	"github.com/comigor/jarvis-chat/internal/config"
	"github.com/comigor/jarvis-chat/internal/history"
)

// NewClient creates the Completer for the configured provider.
func NewClient(cfg config.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(cfg)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// message is the provider-neutral projection of a request entry.
type message struct {
	Role    string
	Content string
}

// project turns history into request messages, with the system prompt first when set.
func project(systemPrompt string, turns []history.Turn) []message {
	out := make([]message, 0, len(turns)+1)
	if systemPrompt != "" {
		out = append(out, message{Role: "system", Content: systemPrompt})
	}
	for _, t := range turns {
		out = append(out, message{Role: string(t.Role), Content: t.Content})
	}
	return out
}
