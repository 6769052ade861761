// Package session tracks which chat sessions exist and which one is active.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/comigor/jarvis-chat/internal/history"
	"github.com/comigor/jarvis-chat/internal/logger"
	"github.com/comigor/jarvis-chat/internal/storage"
)

// IDLayout is the timestamp layout session ids start with. It sorts
// lexically in creation order at second granularity.
const IDLayout = "20060102-150405"

// ErrNotFound is returned when an operation names a session the registry does not know.
var ErrNotFound = errors.New("session not found")

// Error carries the operation and session an error belongs to.
type Error struct {
	Op        string
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("session %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session %s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// State is the registry's view of the world. ActiveID is empty only when
// KnownIDs is empty; KnownIDs is ordered newest first.
type State struct {
	ActiveID string
	KnownIDs []string
}

// Registry owns the session State and keeps it in sync with a Store.
// It is not safe for concurrent use.
type Registry struct {
	store storage.Store
	now   func() time.Time
	state State
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now when generating ids.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry returns a registry backed by store. Call Bootstrap before use.
func NewRegistry(store storage.Store, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Active returns the active session id, or "" when there is none.
func (r *Registry) Active() string {
	return r.state.ActiveID
}

// IDs returns the known session ids, newest first.
func (r *Registry) IDs() []string {
	return slices.Clone(r.state.KnownIDs)
}

// State returns a copy of the registry state.
func (r *Registry) State() State {
	return State{ActiveID: r.state.ActiveID, KnownIDs: r.IDs()}
}

// Bootstrap reloads the known ids from storage. With no stored sessions a fresh
// one is created; otherwise a missing or stale active id falls back to the newest.
func (r *Registry) Bootstrap(ctx context.Context) error {
	ids, err := r.store.List(ctx)
	if err != nil {
		return &Error{Op: "bootstrap", Err: err}
	}
	r.state.KnownIDs = ids

	if len(ids) == 0 {
		r.state.ActiveID = ""
		_, err := r.Create(ctx)
		return err
	}
	if !slices.Contains(ids, r.state.ActiveID) {
		r.state.ActiveID = ids[0]
	}
	logger.L.Debug("sessions loaded", "count", len(ids), "active", r.state.ActiveID)
	return nil
}

// Create persists an empty history under a new id and makes it active.
func (r *Registry) Create(ctx context.Context) (string, error) {
	id := r.newID()

	payload, err := history.Encode(history.History{})
	if err != nil {
		return "", &Error{Op: "create", SessionID: id, Err: err}
	}
	if err := r.store.Write(ctx, id, payload); err != nil {
		return "", &Error{Op: "create", SessionID: id, Err: err}
	}

	r.state.KnownIDs = slices.Insert(r.state.KnownIDs, 0, id)
	r.state.ActiveID = id
	logger.L.Info("session created", "session", id)
	return id, nil
}

// Select makes id the active session. It does no I/O.
func (r *Registry) Select(id string) error {
	if !slices.Contains(r.state.KnownIDs, id) {
		return &Error{Op: "select", SessionID: id, Err: ErrNotFound}
	}
	r.state.ActiveID = id
	return nil
}

// Delete removes the session's record and forgets it. Deleting the active
// session activates the newest remaining one, or a new empty session.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return &Error{Op: "delete", SessionID: id, Err: err}
	}
	r.state.KnownIDs = slices.DeleteFunc(r.state.KnownIDs, func(k string) bool { return k == id })
	logger.L.Info("session deleted", "session", id)

	if id != r.state.ActiveID {
		return nil
	}
	if len(r.state.KnownIDs) > 0 {
		r.state.ActiveID = r.state.KnownIDs[0]
		return nil
	}
	r.state.ActiveID = ""
	_, err := r.Create(ctx)
	return err
}

// newID derives an id from the clock. Sessions created within the same second
// share the timestamp and get a counter suffix (-01, -02, ...) one past the
// highest already in use, so ids keep sorting in creation order.
func (r *Registry) newID() string {
	base := r.now().UTC().Format(IDLayout)
	taken, last := false, 0
	for _, id := range r.state.KnownIDs {
		if id == base {
			taken = true
			continue
		}
		suffix, ok := strings.CutPrefix(id, base+"-")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil {
			taken = true
			last = max(last, n)
		}
	}
	if !taken {
		return base
	}
	return fmt.Sprintf("%s-%02d", base, last+1)
}
