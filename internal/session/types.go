package session

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TimestampLayout is the minute-granularity wall-clock format stamped on every
// message. It is zero-padded and fixed-width, so string order is time order.
const TimestampLayout = "2006-01-02 15:04"

const (
	DefaultMaxMessages = 15
	DefaultMaxSessions = 10
)

// Message is a single conversational turn.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewMessage stamps a message with t formatted in TimestampLayout.
func NewMessage(role Role, content string, t time.Time) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: FormatTimestamp(t),
	}
}

func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// EvictionKey selects which timestamp orders sessions for eviction.
type EvictionKey string

const (
	// EvictByFirstMessage uses the first message currently stored, so a session
	// that has been truncated is keyed on its newest surviving prefix.
	EvictByFirstMessage EvictionKey = "first_message"
	// EvictByCreation uses the timestamp of the first message ever appended.
	EvictByCreation EvictionKey = "created"
)

// ParseEvictionKey accepts the config spelling of an eviction key.
func ParseEvictionKey(v string) (EvictionKey, bool) {
	switch EvictionKey(v) {
	case EvictByFirstMessage, "":
		return EvictByFirstMessage, true
	case EvictByCreation, "creation":
		return EvictByCreation, true
	default:
		return "", false
	}
}

// Evicted describes a session removed to keep the store within capacity.
type Evicted struct {
	SessionID string
	Messages  []Message
	CreatedAt string
}
