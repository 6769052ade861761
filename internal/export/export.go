// Package export renders a session transcript for use outside the app.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/comigor/jarvis-chat/internal/history"
)

// ErrUnknownFormat is returned by For for formats without an exporter.
var ErrUnknownFormat = errors.New("unknown export format")

// Exporter writes one session's history to w.
type Exporter interface {
	Export(sessionID string, h history.History, w io.Writer) error
	Extension() string
	ContentType() string
}

// For returns the exporter for format (json, yaml/yml, markdown/md).
func For(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "markdown", "md":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
