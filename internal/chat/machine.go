package chat

import (
	"context"

	"github.com/qmuntal/stateless"

	"github.com/comigor/jarvis-chat/internal/logger"
)

// Turn lifecycle states.
type turnState string

const (
	StateLoading            turnState = "Loading"
	StateAwaitingCompletion turnState = "AwaitingCompletion"
	StateStreaming          turnState = "Streaming"
	StatePersisting         turnState = "Persisting"
	StateDone               turnState = "Done"      // terminal: history written
	StateFailed             turnState = "Failed"    // terminal: error surfaced
	StateAbandoned          turnState = "Abandoned" // terminal: consumer went away, nothing written
)

// Turn lifecycle triggers.
type turnTrigger string

const (
	TriggerLoaded             turnTrigger = "Loaded"
	TriggerLoadFailed         turnTrigger = "LoadFailed"
	TriggerFragment           turnTrigger = "Fragment"
	TriggerCompletionFinished turnTrigger = "CompletionFinished"
	TriggerCompletionFailed   turnTrigger = "CompletionFailed"
	TriggerPersisted          turnTrigger = "Persisted"
	TriggerPersistFailed      turnTrigger = "PersistFailed"
	TriggerAbandon            turnTrigger = "Abandon"
)

// newTurnMachine builds the state machine one Turn walks through. Persisting
// can only be entered from the completion states and never left except to a
// terminal state, so a turn writes its history at most once.
func newTurnMachine(sessionID string) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateLoading)

	logEntry := func(state turnState) func(context.Context, ...any) error {
		return func(ctx context.Context, args ...any) error {
			logger.L.Debug("turn state", "session", sessionID, "state", string(state))
			return nil
		}
	}

	fsm.Configure(StateLoading).
		Permit(TriggerLoaded, StateAwaitingCompletion).
		Permit(TriggerLoadFailed, StateFailed)

	fsm.Configure(StateAwaitingCompletion).
		OnEntry(logEntry(StateAwaitingCompletion)).
		Permit(TriggerFragment, StateStreaming).
		Permit(TriggerCompletionFinished, StatePersisting).
		Permit(TriggerCompletionFailed, StatePersisting).
		Permit(TriggerAbandon, StateAbandoned)

	fsm.Configure(StateStreaming).
		PermitReentry(TriggerFragment).
		Permit(TriggerCompletionFinished, StatePersisting).
		Permit(TriggerCompletionFailed, StatePersisting).
		Permit(TriggerAbandon, StateAbandoned)

	fsm.Configure(StatePersisting).
		OnEntry(logEntry(StatePersisting)).
		Permit(TriggerPersisted, StateDone).
		Permit(TriggerPersistFailed, StateFailed)

	fsm.Configure(StateDone).OnEntry(logEntry(StateDone))
	fsm.Configure(StateFailed).OnEntry(logEntry(StateFailed))
	fsm.Configure(StateAbandoned).OnEntry(logEntry(StateAbandoned))

	return fsm
}
