// Package history holds the conversation data model and the codec used to
// persist it. A stored record is a JSON array of {"role", "content"} objects.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/comigor/jarvis-chat/internal/logger"
)

// ErrCorrupt marks a payload that cannot be decoded into a History.
var ErrCorrupt = errors.New("corrupt history")

type wireTurn struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

// Encode serializes h. The output depends only on h, so equal histories always
// encode to identical bytes.
func Encode(h History) ([]byte, error) {
	if h == nil {
		h = History{}
	}
	return json.Marshal(h)
}

// DecodeStrict parses a payload and reports why it is unusable. Absent or
// whitespace-only payloads decode to an empty History without error.
func DecodeStrict(raw []byte) (History, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return History{}, nil
	}

	var wire []wireTurn
	if err := json.Unmarshal(raw, &wire); err != nil {
		return History{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	h := make(History, 0, len(wire))
	for i, w := range wire {
		if w.Role == nil || w.Content == nil {
			return History{}, fmt.Errorf("%w: turn %d is missing role or content", ErrCorrupt, i)
		}
		role := Role(*w.Role)
		if !role.Valid() {
			return History{}, fmt.Errorf("%w: turn %d has unknown role %q", ErrCorrupt, i, *w.Role)
		}
		h = append(h, Turn{Role: role, Content: *w.Content})
	}
	return h, nil
}

// Decode is DecodeStrict with corruption swallowed: any unusable payload yields
// an empty History so the session stays usable.
func Decode(raw []byte) History {
	h, err := DecodeStrict(raw)
	if err != nil {
		logger.L.Warn("discarding unreadable history", "error", err, "bytes", len(raw))
		return History{}
	}
	return h
}
