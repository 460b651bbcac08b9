package domain

import "time"

// SessionIdleTimeout is the inactivity window after which a session is evicted.
const SessionIdleTimeout = time.Hour

// Role of a session message author.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one append-only conversation turn.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	TS      time.Time `json:"ts"`
}

// Segment groups consecutive messages that share an intent.
type Segment struct {
	Intent     Intent    `json:"intent"`
	StartIndex int       `json:"start_index"`
	StartedAt  time.Time `json:"started_at"`
}

// Session is a snapshot of short-lived conversation memory.
type Session struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Messages     []Message `json:"messages"`
	Segments     []Segment `json:"segments"`
}
