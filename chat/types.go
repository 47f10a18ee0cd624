package chat

import (
	"context"
	"errors"

	"github.com/visionchat/visionchat/ollama"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AttachmentState tracks an image through its encode lifecycle.
type AttachmentState int

const (
	AttachmentPending AttachmentState = iota
	AttachmentEncoding
	AttachmentReady
	AttachmentFailed
)

func (s AttachmentState) String() string {
	switch s {
	case AttachmentPending:
		return "pending"
	case AttachmentEncoding:
		return "encoding"
	case AttachmentReady:
		return "ready"
	case AttachmentFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Attachment is a user-selected image plus its encode state. Attachments
// live from file selection until the message is sent or the chat is
// cleared.
type Attachment struct {
	ID       string
	Path     string
	MimeType string
	Size     int64
	State    AttachmentState
	Progress int
	Payload  string // base64, set when State == AttachmentReady
	Err      string // set when State == AttachmentFailed
}

// Turn is one entry in the conversation. Only the most recent assistant
// turn is ever mutated, by appending streamed deltas; all earlier turns
// are immutable.
type Turn struct {
	ID     string
	Role   Role
	Text   string
	Images []string // source paths, for display only
	Err    string
}

// ExchangeState tracks one request/response cycle.
type ExchangeState int

const (
	ExchangeAssembling ExchangeState = iota
	ExchangeSending
	ExchangeStreaming
	ExchangeCompleted
	ExchangeFailed
	ExchangeCancelled
)

// EventType discriminates coordinator events.
type EventType int

const (
	EventUploadProgress EventType = iota
	EventUploadReady
	EventUploadFailed
	EventDelta
	EventExchangeFailed
	EventExchangeCompleted
)

// Event is a one-way notification from a worker to the presentation
// context. Upload events carry AttachmentID; exchange events carry the
// target assistant TurnID.
type Event struct {
	Type         EventType
	AttachmentID string
	TurnID       string
	Percent      int
	Payload      string
	Content      string
	Err          string
}

// Sentinel errors surfaced by the coordinator.
var (
	ErrEmptyPrompt    = errors.New("prompt text is empty")
	ErrUploadsPending = errors.New("attachments are still uploading")
	ErrExchangeActive = errors.New("an exchange is already in progress")
)

// streamer is the subset of *ollama.Client the session layer needs.
// Tests substitute fakes for it.
type streamer interface {
	Chat(ctx context.Context, req *ollama.ChatRequest) (*ollama.ChatChunk, error)
	ChatStream(ctx context.Context, req *ollama.ChatRequest) (<-chan ollama.ChatChunk, error)
}
