package server

import (
	"time"

	"github.com/manash/modelchat/internal/history"
	"github.com/manash/modelchat/pkg/models"
)

// Request types a client may send.
const (
	RequestDescribe = "describe"
	RequestRefine   = "refine"
	RequestSubmit   = "submit"
	RequestClear    = "clear"
	RequestState    = "state"
)

// Event types the server sends back.
const (
	EventState      = "state"
	EventReply      = "reply"
	EventSubmission = "submission"
	EventError      = "error"
)

// Request is one inbound frame.
type Request struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Event is one outbound frame. Every event except "error" carries the full
// session state after the request was applied.
type Event struct {
	Type       string                   `json:"type"`
	Reply      *history.Message         `json:"reply,omitempty"`
	OK         bool                     `json:"ok"`
	Submission *models.SubmissionResult `json:"submission,omitempty"`
	State      *State                   `json:"state,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

type State struct {
	SessionID   string                      `json:"session_id"`
	Messages    []history.Message           `json:"messages"`
	Adjustments []history.AdjustmentRequest `json:"adjustments"`
	Preview     *PreviewView                `json:"preview,omitempty"`
}

// PreviewView is the wire form of a preview. Data is base64 in JSON.
type PreviewView struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Prompt    string    `json:"prompt"`
	Format    string    `json:"format"`
	MIMEType  string    `json:"mime_type"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Cost      float64   `json:"cost"`
	URL       string    `json:"url,omitempty"`
	Data      []byte    `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newPreviewView(p *models.Preview, data []byte) *PreviewView {
	return &PreviewView{
		ID:        p.ID,
		Source:    string(p.Source),
		Prompt:    p.Prompt,
		Format:    p.Format.String(),
		MIMEType:  p.MIMEType(),
		Width:     p.Width,
		Height:    p.Height,
		Cost:      p.Cost,
		URL:       p.URL,
		Data:      data,
		CreatedAt: p.CreatedAt,
	}
}
