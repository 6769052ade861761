package export

import (
	"fmt"
	"io"

	"github.com/comigor/jarvis-chat/internal/history"
)

// MarkdownExporter writes a readable transcript with one section per turn.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(sessionID string, h history.History, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# Session %s\n\n", sessionID); err != nil {
		return err
	}
	for _, t := range h {
		if _, err := fmt.Fprintf(w, "## %s\n\n%s\n\n", t.Role, t.Content); err != nil {
			return err
		}
	}
	return nil
}

func (e *MarkdownExporter) Extension() string   { return "md" }
func (e *MarkdownExporter) ContentType() string { return "text/markdown; charset=utf-8" }
