// Package chat runs conversation turns: it loads a session's history, streams
// the model's reply to the caller and writes the updated history back.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/comigor/jarvis-chat/internal/history"
	"github.com/comigor/jarvis-chat/internal/llm"
	"github.com/comigor/jarvis-chat/internal/logger"
	"github.com/comigor/jarvis-chat/internal/storage"
)

// Stage names where in a turn an error happened.
type Stage string

const (
	StageLoad     Stage = "load"
	StageComplete Stage = "complete"
	StagePersist  Stage = "persist"
)

// TurnError reports a failed turn. Unwrap exposes the storage or completion error.
type TurnError struct {
	SessionID string
	Stage     Stage
	Err       error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %s: %s: %v", e.SessionID, e.Stage, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// Orchestrator coordinates history storage with the completion backend.
// Turns against the same session must not run concurrently.
type Orchestrator struct {
	store     storage.Store
	completer llm.Completer
}

// New creates an Orchestrator.
func New(store storage.Store, completer llm.Completer) *Orchestrator {
	return &Orchestrator{store: store, completer: completer}
}

// History loads the persisted history of a session. Unknown sessions and
// unreadable records both come back empty.
func (o *Orchestrator) History(ctx context.Context, sessionID string) (history.History, error) {
	raw, _, err := o.store.Read(ctx, sessionID)
	if err != nil {
		return nil, &TurnError{SessionID: sessionID, Stage: StageLoad, Err: err}
	}
	return history.Decode(raw), nil
}

// Turn sends input to the model in the context of the session and yields the
// reply fragment by fragment. The updated history is written once, after the
// reply is complete. A failure is yielded as the final element.
//
// Blank input yields nothing. Stopping the iteration early, or cancelling ctx,
// abandons the turn and leaves storage untouched. If the model fails, the user
// turn is still saved, without a reply, before the error is yielded.
func (o *Orchestrator) Turn(ctx context.Context, sessionID, input string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text := strings.TrimSpace(input)
		if text == "" {
			return
		}
		stopped := false
		emit := func(fragment string) bool {
			if !yield(fragment, nil) {
				stopped = true
			}
			return !stopped
		}
		if err := o.turn(ctx, sessionID, text, emit); err != nil && !stopped {
			yield("", err)
		}
	}
}

func (o *Orchestrator) turn(ctx context.Context, sessionID, text string, emit func(string) bool) error {
	fsm := newTurnMachine(sessionID)
	fire := func(trigger turnTrigger) {
		if err := fsm.FireCtx(ctx, trigger); err != nil {
			logger.L.Warn("FSM fire error", "session", sessionID, "trigger", string(trigger), "error", err)
		}
	}

	h, err := o.History(ctx, sessionID)
	if err != nil {
		fire(TriggerLoadFailed)
		return err
	}
	h = h.Append(history.Turn{Role: history.RoleUser, Content: text})
	fire(TriggerLoaded)

	reply, completionErr := o.collect(ctx, h, func(fragment string) bool {
		fire(TriggerFragment)
		return emit(fragment)
	})

	if errors.Is(completionErr, errAbandoned) || ctx.Err() != nil {
		fire(TriggerAbandon)
		logger.L.Info("turn abandoned", "session", sessionID)
		return ctx.Err()
	}

	if completionErr != nil {
		fire(TriggerCompletionFailed)
		logger.L.Error("completion failed; saving user turn only", "session", sessionID, "error", completionErr)
	} else {
		fire(TriggerCompletionFinished)
		if reply != "" {
			h = h.Append(history.Turn{Role: history.RoleAssistant, Content: reply})
		}
	}

	if fsm.MustState() != StatePersisting {
		return &TurnError{SessionID: sessionID, Stage: StagePersist, Err: fmt.Errorf("unexpected turn state %v", fsm.MustState())}
	}
	if err := o.persist(ctx, sessionID, h); err != nil {
		fire(TriggerPersistFailed)
		logger.L.Error("failed to save history", "session", sessionID, "error", err)
		return errors.Join(err, wrapCompletion(sessionID, completionErr))
	}
	fire(TriggerPersisted)
	logger.L.Debug("turn saved", "session", sessionID, "turns", len(h))

	return wrapCompletion(sessionID, completionErr)
}

// errAbandoned is returned by collect when the consumer stopped iterating.
var errAbandoned = errors.New("consumer stopped reading")

// collect drains the completion stream, forwarding every fragment to emit and
// returning the concatenated reply.
func (o *Orchestrator) collect(ctx context.Context, h history.History, emit func(string) bool) (string, error) {
	stream, err := o.completer.Complete(ctx, h)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return reply.String(), nil
		}
		if err != nil {
			return "", err
		}
		if fragment == "" {
			continue
		}
		reply.WriteString(fragment)
		if !emit(fragment) {
			return "", errAbandoned
		}
	}
}

func (o *Orchestrator) persist(ctx context.Context, sessionID string, h history.History) error {
	payload, err := history.Encode(h)
	if err != nil {
		return &TurnError{SessionID: sessionID, Stage: StagePersist, Err: err}
	}
	if err := o.store.Write(ctx, sessionID, payload); err != nil {
		return &TurnError{SessionID: sessionID, Stage: StagePersist, Err: err}
	}
	return nil
}

func wrapCompletion(sessionID string, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, llm.ErrCompletion) {
		err = &llm.CompletionError{Provider: "unknown", Err: err}
	}
	return &TurnError{SessionID: sessionID, Stage: StageComplete, Err: err}
}
