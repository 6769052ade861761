package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/comigor/jarvis-chat/internal/history"
)

// Completer produces an assistant reply for an ordered list of turns.
// It is the only part of the system that talks to a model; tests replace it with a fake.
type Completer interface {
	Complete(ctx context.Context, turns []history.Turn) (Stream, error)
}

// Stream is an incremental reply. Recv returns io.EOF once the reply is complete.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// ErrCompletion matches every *CompletionError via errors.Is.
var ErrCompletion = errors.New("completion failed")

// CompletionError wraps a failure of the completion backend.
type CompletionError struct {
	Provider string
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s completion: %v", e.Provider, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

func (e *CompletionError) Is(target error) bool {
	return target == ErrCompletion
}
