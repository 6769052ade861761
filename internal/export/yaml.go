package export

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/comigor/jarvis-chat/internal/history"
)

// YAMLExporter writes the session id and its turns as a YAML document.
type YAMLExporter struct{}

type yamlSession struct {
	Session string          `yaml:"session"`
	Turns   history.History `yaml:"turns"`
}

func (e *YAMLExporter) Export(sessionID string, h history.History, w io.Writer) error {
	if h == nil {
		h = history.History{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(yamlSession{Session: sessionID, Turns: h}); err != nil {
		return err
	}
	return enc.Close()
}

func (e *YAMLExporter) Extension() string   { return "yaml" }
func (e *YAMLExporter) ContentType() string { return "application/yaml" }
