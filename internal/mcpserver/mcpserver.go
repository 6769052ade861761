// Package mcpserver exposes the chat sessions as MCP tools, so an MCP client
// can drive conversations the same way the HTTP front end does.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/comigor/jarvis-chat/internal/chat"
	"github.com/comigor/jarvis-chat/internal/logger"
	"github.com/comigor/jarvis-chat/internal/session"
)

const (
	serverName    = "jarvis-chat"
	serverVersion = "0.1.0"
)

// Handler holds the state the tools operate on.
type Handler struct {
	mu       sync.Mutex
	registry *session.Registry
	chat     *chat.Orchestrator
}

// NewHandler returns a Handler over a bootstrapped registry.
func NewHandler(registry *session.Registry, orchestrator *chat.Orchestrator) *Handler {
	return &Handler{registry: registry, chat: orchestrator}
}

// NewServer builds an MCP server with every session tool registered.
func NewServer(h *Handler) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("Lists chat session ids, newest first, and the active one."),
	), h.ListSessions)

	s.AddTool(mcp.NewTool("new_session",
		mcp.WithDescription("Starts a new, empty chat session and makes it active."),
	), h.NewSession)

	s.AddTool(mcp.NewTool("select_session",
		mcp.WithDescription("Makes an existing session the active one."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Id returned by list_sessions")),
	), h.SelectSession)

	s.AddTool(mcp.NewTool("delete_session",
		mcp.WithDescription("Deletes a session and its history."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Id returned by list_sessions")),
	), h.DeleteSession)

	s.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Returns the turns of a session as JSON. Defaults to the active session."),
		mcp.WithString("session_id", mcp.Description("Session id; omit for the active session")),
	), h.GetHistory)

	s.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Sends a user message to the assistant and returns the full reply."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user's message")),
		mcp.WithString("session_id", mcp.Description("Session id; omit for the active session")),
	), h.SendMessage)

	return s
}

// Serve runs the MCP server over stdio until stdin closes.
func Serve(h *Handler) error {
	logger.L.Info("serving MCP over stdio")
	return server.ServeStdio(NewServer(h))
}

func stringArg(req mcp.CallToolRequest, name string) string {
	v, _ := req.GetArguments()[name].(string)
	return strings.TrimSpace(v)
}

type sessionsResult struct {
	Active   string   `json:"active"`
	Sessions []string `json:"sessions"`
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (h *Handler) sessions() (*mcp.CallToolResult, error) {
	st := h.registry.State()
	return jsonResult(sessionsResult{Active: st.ActiveID, Sessions: st.KnownIDs})
}

// target returns the session a tool call refers to, defaulting to the active one.
// Ids the registry does not know are rejected so no tool writes an untracked record.
func (h *Handler) target(op string, req mcp.CallToolRequest) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := stringArg(req, "session_id")
	if id == "" {
		return h.registry.Active(), nil
	}
	if !slices.Contains(h.registry.IDs(), id) {
		return "", &session.Error{Op: op, SessionID: id, Err: session.ErrNotFound}
	}
	return id, nil
}

func (h *Handler) ListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions()
}

func (h *Handler) NewSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.registry.Create(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.sessions()
}

func (h *Handler) SelectSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.registry.Select(stringArg(req, "session_id")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.sessions()
}

func (h *Handler) DeleteSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := stringArg(req, "session_id")
	if !slices.Contains(h.registry.IDs(), id) {
		return mcp.NewToolResultError((&session.Error{Op: "delete", SessionID: id, Err: session.ErrNotFound}).Error()), nil
	}
	if err := h.registry.Delete(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.sessions()
}

func (h *Handler) GetHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := h.target("history", req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	hist, err := h.chat.History(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(hist)
}

func (h *Handler) SendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := stringArg(req, "message")
	if message == "" {
		return mcp.NewToolResultError("message must not be blank"), nil
	}

	id, err := h.target("send", req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var reply strings.Builder
	for fragment, err := range h.chat.Turn(ctx, id, message) {
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("session %s: %v", id, err)), nil
		}
		reply.WriteString(fragment)
	}
	return mcp.NewToolResultText(reply.String()), nil
}
