package history

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/manash/modelchat/pkg/models"
)

// Session holds one conversation, its adjustment requests and the current
// preview. It has a single writer; callers that share a Session across
// goroutines must serialize access themselves.
type Session struct {
	id          string
	createdAt   time.Time
	messages    []Message
	adjustments []AdjustmentRequest
	preview     *models.Preview

	now    func() time.Time
	newID  func() string
	lastTS time.Time
}

type Option func(*Session)

// WithClock replaces time.Now as the source of message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithIDFunc replaces uuid generation for sessions, messages and adjustments.
func WithIDFunc(newID func() string) Option {
	return func(s *Session) {
		s.newID = newID
	}
}

func New(opts ...Option) *Session {
	s := &Session{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.id = s.newID()
	s.createdAt = s.now()
	s.lastTS = s.createdAt
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// RecordUserTurn appends a user message. Empty text is accepted.
func (s *Session) RecordUserTurn(text string) Message {
	return s.appendMessage(RoleUser, text)
}

// RecordAssistantTurn appends an assistant acknowledgment.
func (s *Session) RecordAssistantTurn(text string) Message {
	return s.appendMessage(RoleAssistant, text)
}

// RecordAdjustment appends a structured adjustment request. It does not touch
// the conversation; callers that want the instruction in the chat as well
// record a user turn separately.
func (s *Session) RecordAdjustment(text string) AdjustmentRequest {
	adj := AdjustmentRequest{
		ID:        s.newID(),
		Text:      text,
		CreatedAt: s.tick(),
	}
	s.adjustments = append(s.adjustments, adj)
	return adj
}

// SetPreview replaces the current preview. Only call it after the backend
// call that produced p succeeded.
func (s *Session) SetPreview(p *models.Preview) {
	s.preview = p
}

func (s *Session) Preview() *models.Preview {
	return s.preview
}

func (s *Session) HasPreview() bool {
	return s.preview != nil
}

func (s *Session) IsEmpty() bool {
	return len(s.messages) == 0
}

func (s *Session) MessageCount() int {
	return len(s.messages)
}

func (s *Session) AdjustmentCount() int {
	return len(s.adjustments)
}

func (s *Session) Messages() []Message {
	return slices.Clone(s.messages)
}

func (s *Session) Adjustments() []AdjustmentRequest {
	return slices.Clone(s.adjustments)
}

// LastMessage returns the most recent message, if any.
func (s *Session) LastMessage() (Message, bool) {
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Snapshot copies the conversation and adjustments so that neither the
// snapshot nor the live session can observe later changes to the other.
func (s *Session) Snapshot() Snapshot {
	conv := make([]Message, len(s.messages))
	copy(conv, s.messages)
	adjs := make([]AdjustmentRequest, len(s.adjustments))
	copy(adjs, s.adjustments)

	return Snapshot{
		SessionID:       s.id,
		Conversation:    conv,
		Adjustments:     adjs,
		PreviewIncluded: s.preview != nil,
		TakenAt:         s.now(),
	}
}

// Reset returns a brand-new empty Session configured like s. The receiver is
// left untouched.
func (s *Session) Reset() *Session {
	return New(WithClock(s.now), WithIDFunc(s.newID))
}

func (s *Session) appendMessage(role Role, text string) Message {
	msg := Message{
		ID:        s.newID(),
		Role:      role,
		Content:   text,
		Timestamp: s.tick(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

// tick never returns a time before the previous one.
func (s *Session) tick() time.Time {
	t := s.now()
	if t.Before(s.lastTS) {
		t = s.lastTS
	}
	s.lastTS = t
	return t
}
