package llm

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jmorganca/ollama/api"

	"github.com/comigor/jarvis-chat/internal/config"
	"github.com/comigor/jarvis-chat/internal/history"
	"github.com/comigor/jarvis-chat/internal/logger"
)

// OllamaClient streams replies from a local Ollama server.
type OllamaClient struct {
	client       *api.Client
	model        string
	systemPrompt string
}

// NewOllamaClient creates a client for cfg.BaseURL.
//
// The api package at the pinned version can only build a client from the
// OLLAMA_HOST environment variable, so a non-empty cfg.BaseURL is written to
// OLLAMA_HOST for the whole process. Anything else in the process reading
// OLLAMA_HOST afterwards sees the configured URL. With an empty BaseURL the
// environment is left alone and the api package default applies.
func NewOllamaClient(cfg config.LLMConfig) (*OllamaClient, error) {
	if cfg.BaseURL != "" && os.Getenv("OLLAMA_HOST") != cfg.BaseURL {
		if err := os.Setenv("OLLAMA_HOST", cfg.BaseURL); err != nil {
			return nil, err
		}
	}
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}
	return &OllamaClient{
		client:       client,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

type chunk struct {
	text string
	err  error
}

// Complete implements Completer. The request runs in its own goroutine and hands
// fragments over a channel, so nothing is buffered beyond one fragment.
func (c *OllamaClient) Complete(ctx context.Context, turns []history.Turn) (Stream, error) {
	msgs := project(c.systemPrompt, turns)
	ollamaMessages := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		ollamaMessages = append(ollamaMessages, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := true
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: ollamaMessages,
		Stream:   &stream,
	}

	cancellableCtx, cancel := context.WithCancel(ctx)
	ch := make(chan chunk)
	go func() {
		defer close(ch)
		logger.L.Debug("ollama streaming request", "model", c.model, "messages", len(ollamaMessages))

		err := c.client.Chat(cancellableCtx, req, func(resp api.ChatResponse) error {
			content, err := messageContent(resp)
			if err != nil {
				return err
			}
			if content == "" {
				return nil
			}
			select {
			case ch <- chunk{text: content}:
				return nil
			case <-cancellableCtx.Done():
				return cancellableCtx.Err()
			}
		})
		if err != nil {
			select {
			case ch <- chunk{err: &CompletionError{Provider: config.ProviderOllama, Err: err}}:
			case <-cancellableCtx.Done():
			}
		}
	}()

	return &ollamaStream{ch: ch, cancel: cancel}, nil
}

// messageContent returns the text of a chat chunk. Chunks without a message,
// such as the final one, have no text.
func messageContent(resp api.ChatResponse) (string, error) {
	switch m := any(resp.Message).(type) {
	case *api.Message:
		if m == nil {
			return "", nil
		}
		return m.Content, nil
	case api.Message:
		return m.Content, nil
	default:
		return "", fmt.Errorf("unexpected chat message type %T", m)
	}
}

type ollamaStream struct {
	ch     <-chan chunk
	cancel context.CancelFunc
}

func (s *ollamaStream) Recv() (string, error) {
	c, ok := <-s.ch
	if !ok {
		return "", io.EOF
	}
	return c.text, c.err
}

// Close stops the request and waits for the producer goroutine to exit.
func (s *ollamaStream) Close() error {
	s.cancel()
	for range s.ch {
	}
	return nil
}
