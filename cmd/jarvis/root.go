package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/comigor/jarvis-chat/internal/chat"
	"github.com/comigor/jarvis-chat/internal/config"
	"github.com/comigor/jarvis-chat/internal/llm"
	"github.com/comigor/jarvis-chat/internal/logger"
	"github.com/comigor/jarvis-chat/internal/session"
	"github.com/comigor/jarvis-chat/internal/storage"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "jarvis",
		Short: "Chat with a language model across persistent sessions",
		Long: `jarvis keeps a set of chat sessions, each with its own history, and
sends every message to the configured model together with the history of the
active session. Replies are streamed as they arrive and saved once complete.

Configuration is read from config.yaml in the working directory, the file
given by --config, and JARVIS_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath != "" {
				return os.Setenv("CONFIG_PATH", opts.configPath)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(
		newServeCmd(opts),
		newMCPCmd(opts),
		newChatCmd(opts),
		newExportCmd(opts),
	)
	return cmd
}

// app is everything a subcommand needs, built from the loaded configuration.
type app struct {
	cfg      *config.Config
	store    storage.Store
	registry *session.Registry
	chat     *chat.Orchestrator
}

func (a *app) Close() error {
	return a.store.Close()
}

// setup loads the configuration, applies the logging settings and opens the
// session store. The registry comes back bootstrapped.
func setup(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger.SetFormat(cfg.Log.Format)
	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger.SetLevel(level)

	completer, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	registry := session.NewRegistry(store)
	if err := registry.Bootstrap(ctx); err != nil {
		store.Close()
		return nil, err
	}
	logger.L.Debug("application ready",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"storage", cfg.Storage.Driver,
		"active", registry.Active())

	return &app{
		cfg:      cfg,
		store:    store,
		registry: registry,
		chat:     chat.New(store, completer),
	}, nil
}
