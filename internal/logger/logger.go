package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var levelVar = new(slog.LevelVar)

var (
	output io.Writer = os.Stdout
	format           = "json"
)

// L is the process-wide logger. Reconfigure it with SetLevel, SetFormat and SetOutput.
var L = newLogger()

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelVar}
	if format == "text" {
		return slog.New(slog.NewTextHandler(output, opts))
	}
	return slog.New(slog.NewJSONHandler(output, opts))
}

// SetLevel configures the global log level (debug, info, warn, error).
func SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// SetFormat switches between "json" and "text" output. Anything else means json.
func SetFormat(f string) {
	format = strings.ToLower(f)
	L = newLogger()
}

// SetOutput redirects log output, e.g. to stderr for the interactive chat.
func SetOutput(w io.Writer) {
	output = w
	L = newLogger()
}
