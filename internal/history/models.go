package history

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) String() string {
	return string(r)
}

// Message is one chat turn. Values are copied out of the store, so a Message
// held by a caller can never change the session it came from.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AdjustmentRequest is a refinement instruction. Slice order is application order.
type AdjustmentRequest struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the read-only projection handed to a submission backend.
type Snapshot struct {
	SessionID       string              `json:"session_id"`
	Conversation    []Message           `json:"conversation"`
	Adjustments     []AdjustmentRequest `json:"adjustments"`
	PreviewIncluded bool                `json:"preview_included"`
	TakenAt         time.Time           `json:"taken_at"`
}

func (s Snapshot) AdjustmentTexts() []string {
	texts := make([]string, len(s.Adjustments))
	for i, adj := range s.Adjustments {
		texts[i] = adj.Text
	}
	return texts
}

func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
