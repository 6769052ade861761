package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/comigor/jarvis-chat/internal/chat"
	"github.com/comigor/jarvis-chat/internal/history"
	"github.com/comigor/jarvis-chat/internal/llm"
	"github.com/comigor/jarvis-chat/internal/session"
	"github.com/comigor/jarvis-chat/internal/storage"
)

type echoCompleter struct {
	err error
}

func (e *echoCompleter) Complete(ctx context.Context, turns []history.Turn) (llm.Stream, error) {
	last := turns[len(turns)-1].Content
	return &echoStream{parts: []string{"you said: ", last}, err: e.err}, nil
}

type echoStream struct {
	parts []string
	err   error
}

func (s *echoStream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if len(s.parts) == 0 {
		return "", io.EOF
	}
	p := s.parts[0]
	s.parts = s.parts[1:]
	return p, nil
}

func (s *echoStream) Close() error { return nil }

func newHandler(t *testing.T, completer llm.Completer) *Handler {
	t.Helper()
	return newHandlerOn(t, storage.NewMemoryStore(), completer)
}

func newHandlerOn(t *testing.T, store storage.Store, completer llm.Completer) *Handler {
	t.Helper()
	next := time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)
	reg := session.NewRegistry(store, session.WithClock(func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}))
	require.NoError(t, reg.Bootstrap(context.Background()))
	return NewHandler(reg, chat.New(store, completer))
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "unexpected content %T", res.Content[0])
	return tc.Text
}

func sessions(t *testing.T, res *mcp.CallToolResult) sessionsResult {
	t.Helper()
	require.False(t, res.IsError, text(t, res))
	var out sessionsResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	return out
}

func TestNewServer_RegistersTools(t *testing.T) {
	require.NotNil(t, NewServer(newHandler(t, &echoCompleter{})))
}

func TestSessionTools(t *testing.T) {
	ctx := context.Background()
	h := newHandler(t, &echoCompleter{})

	res, err := h.ListSessions(ctx, call(nil))
	require.NoError(t, err)
	require.Equal(t, sessionsResult{Active: "20240517-093000", Sessions: []string{"20240517-093000"}}, sessions(t, res))

	res, err = h.NewSession(ctx, call(nil))
	require.NoError(t, err)
	st := sessions(t, res)
	require.Equal(t, "20240517-093001", st.Active)
	require.Len(t, st.Sessions, 2)

	res, err = h.SelectSession(ctx, call(map[string]any{"session_id": "20240517-093000"}))
	require.NoError(t, err)
	require.Equal(t, "20240517-093000", sessions(t, res).Active)

	res, err = h.SelectSession(ctx, call(map[string]any{"session_id": "ghost"}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, text(t, res), "not found")

	res, err = h.DeleteSession(ctx, call(map[string]any{"session_id": "ghost"}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	res, err = h.DeleteSession(ctx, call(map[string]any{"session_id": "20240517-093001"}))
	require.NoError(t, err)
	require.Equal(t, sessionsResult{Active: "20240517-093000", Sessions: []string{"20240517-093000"}}, sessions(t, res))
}

func TestSendMessage_DefaultsToActiveSession(t *testing.T) {
	ctx := context.Background()
	h := newHandler(t, &echoCompleter{})

	res, err := h.SendMessage(ctx, call(map[string]any{"message": "hello"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "you said: hello", text(t, res))

	res, err = h.GetHistory(ctx, call(nil))
	require.NoError(t, err)
	var hist history.History
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &hist))
	require.Equal(t, history.History{
		{Role: history.RoleUser, Content: "hello"},
		{Role: history.RoleAssistant, Content: "you said: hello"},
	}, hist)
}

func TestSendMessage_Errors(t *testing.T) {
	ctx := context.Background()
	h := newHandler(t, &echoCompleter{err: errors.New("model offline")})

	res, err := h.SendMessage(ctx, call(map[string]any{"message": "  "}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	res, err = h.SendMessage(ctx, call(map[string]any{"message": "hi"}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, text(t, res), "model offline")

	res, err = h.GetHistory(ctx, call(nil))
	require.NoError(t, err)
	require.JSONEq(t, `[{"role":"user","content":"hi"}]`, text(t, res))
}

func TestUnknownSessionIsRejectedWithoutWriting(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	h := newHandlerOn(t, store, &echoCompleter{})

	res, err := h.SendMessage(ctx, call(map[string]any{"message": "hi", "session_id": "ghost"}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, text(t, res), session.ErrNotFound.Error())

	res, err = h.GetHistory(ctx, call(map[string]any{"session_id": "ghost"}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, text(t, res), session.ErrNotFound.Error())

	keys, err := store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"20240517-093000"}, keys)
	require.Equal(t, keys, h.registry.IDs())
}

func TestSendMessage_ExplicitKnownSession(t *testing.T) {
	ctx := context.Background()
	h := newHandler(t, &echoCompleter{})

	_, err := h.NewSession(ctx, call(nil))
	require.NoError(t, err)

	res, err := h.SendMessage(ctx, call(map[string]any{"message": "older", "session_id": "20240517-093000"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	res, err = h.GetHistory(ctx, call(map[string]any{"session_id": "20240517-093000"}))
	require.NoError(t, err)
	require.JSONEq(t, `[{"role":"user","content":"older"},{"role":"assistant","content":"you said: older"}]`, text(t, res))

	res, err = h.GetHistory(ctx, call(nil))
	require.NoError(t, err)
	require.JSONEq(t, `[]`, text(t, res))
}
