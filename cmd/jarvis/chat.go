package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/comigor/jarvis-chat/internal/chat"
	"github.com/comigor/jarvis-chat/internal/logger"
	"github.com/comigor/jarvis-chat/internal/session"
)

const replHelp = `commands:
  /new            start a new session
  /list           list sessions, * marks the active one
  /select <id>    switch to a session
  /delete [id]    delete a session, the active one by default
  /history        print the active session
  /quit           exit
anything else is sent to the model`

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetFormat("text")

			a, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			r := &repl{registry: a.registry, chat: a.chat, out: cmd.OutOrStdout()}
			return r.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

type repl struct {
	registry *session.Registry
	chat     *chat.Orchestrator
	out      io.Writer
}

func (r *repl) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// run reads lines until /quit or end of input.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	r.printf("session %s, /help for commands\n", r.registry.Active())

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		r.printf("> ")
		if !scanner.Scan() {
			r.printf("\n")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			r.send(ctx, line)
			continue
		}
		quit, err := r.command(ctx, line)
		if err != nil {
			r.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		r.printf("%s\n", replHelp)
	case "/new":
		id, err := r.registry.Create(ctx)
		if err != nil {
			return false, err
		}
		r.printf("session %s\n", id)
	case "/list":
		active := r.registry.Active()
		for _, id := range r.registry.IDs() {
			mark := " "
			if id == active {
				mark = "*"
			}
			r.printf("%s %s\n", mark, id)
		}
	case "/select":
		if err := r.registry.Select(arg); err != nil {
			return false, err
		}
		r.printf("session %s\n", arg)
	case "/delete":
		id := arg
		if id == "" {
			id = r.registry.Active()
		}
		if !slices.Contains(r.registry.IDs(), id) {
			return false, &session.Error{Op: "delete", SessionID: id, Err: session.ErrNotFound}
		}
		if err := r.registry.Delete(ctx, id); err != nil {
			return false, err
		}
		r.printf("deleted %s, active session %s\n", id, r.registry.Active())
	case "/history":
		h, err := r.chat.History(ctx, r.registry.Active())
		if err != nil {
			return false, err
		}
		for _, turn := range h {
			r.printf("%s: %s\n", turn.Role, turn.Content)
		}
	default:
		r.printf("unknown command %s, /help for commands\n", name)
	}
	return false, nil
}

func (r *repl) send(ctx context.Context, input string) {
	wrote := false
	for fragment, err := range r.chat.Turn(ctx, r.registry.Active(), input) {
		if err != nil {
			if wrote {
				r.printf("\n")
			}
			r.printf("error: %v\n", err)
			return
		}
		r.printf("%s", fragment)
		wrote = true
	}
	if wrote {
		r.printf("\n")
	}
}
