package export

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/comigor/jarvis-chat/internal/history"
)

// JSONExporter writes the stored payload format, indented.
type JSONExporter struct{}

func (e *JSONExporter) Export(sessionID string, h history.History, w io.Writer) error {
	raw, err := history.Encode(h)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}

func (e *JSONExporter) Extension() string   { return "json" }
func (e *JSONExporter) ContentType() string { return "application/json" }
