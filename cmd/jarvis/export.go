package main

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/comigor/jarvis-chat/internal/export"
	"github.com/comigor/jarvis-chat/internal/session"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export [session-id]",
		Short: "Write a session's history as json, yaml or markdown",
		Long: `Export the history of a session. Without an id the active session is
exported. Output goes to stdout unless --out names a file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := export.For(format)
			if err != nil {
				return err
			}

			a, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			id := a.registry.Active()
			if len(args) == 1 {
				id = args[0]
			}
			if !slices.Contains(a.registry.IDs(), id) {
				return &session.Error{Op: "export", SessionID: id, Err: session.ErrNotFound}
			}

			h, err := a.chat.History(cmd.Context(), id)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			return exporter.Export(id, h, w)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "output format: json, yaml or markdown")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}
