package history

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles a history may contain.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single conversational message.
type Turn struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// History is the ordered list of turns of one session, oldest first.
type History []Turn

// Append returns a new History with t added at the end. h itself is not modified,
// so callers can keep the loaded snapshot around while building the next one.
func (h History) Append(turns ...Turn) History {
	out := make(History, 0, len(h)+len(turns))
	out = append(out, h...)
	return append(out, turns...)
}

// Alternates reports whether the turns strictly alternate starting with the user.
// Histories that don't are still loaded; this is informational.
func (h History) Alternates() bool {
	for i, t := range h {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if t.Role != want {
			return false
		}
	}
	return true
}
