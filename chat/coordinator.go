package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/visionchat/visionchat/imaging"
	"github.com/visionchat/visionchat/ollama"
)

// Client is the server surface the coordinator depends on. *ollama.Client
// satisfies it; tests use fakes.
type Client interface {
	Chat(ctx context.Context, req *ollama.ChatRequest) (*ollama.ChatChunk, error)
	ChatStream(ctx context.Context, req *ollama.ChatRequest) (<-chan ollama.ChatChunk, error)
	ListModels(ctx context.Context, force bool) ([]ollama.ModelInfo, error)
	SetModel(name string)
}

// Config carries the coordinator's tunables.
type Config struct {
	Model         string
	Temperature   float64
	SystemPrompt  string
	Stream        bool
	MaxImageBytes int64
	AllowedTypes  []string
	Logger        zerolog.Logger
}

// Coordinator owns the conversation state: the turn sequence, the pending
// uploads and the at-most-one active exchange.
//
// All methods must be called from a single presentation-facing goroutine
// (the Bubble Tea update loop in this program). Workers never touch this
// state; they communicate through the Events channel, and the presentation
// loop feeds each received event back through Apply.
type Coordinator struct {
	client  Client
	cfg     Config
	encoder *imaging.Encoder
	logger  zerolog.Logger

	events chan Event

	turns       []*Turn
	uploads     []*Attachment          // selection order
	uploadTasks map[string]*uploadTask // by attachment ID
	byID        map[string]*Attachment // by attachment ID

	active     *Exchange
	activeTurn *Turn
}

// NewCoordinator creates a coordinator around the given client. The
// temperature is sent as given, zero included; defaults belong to the
// config layer.
func NewCoordinator(client Client, cfg Config) *Coordinator {
	if cfg.Model == "" {
		cfg.Model = "llama3.2-vision:latest"
	}
	return &Coordinator{
		client:      client,
		cfg:         cfg,
		encoder:     imaging.NewEncoder(cfg.MaxImageBytes, cfg.AllowedTypes),
		logger:      cfg.Logger,
		events:      make(chan Event, 64),
		uploadTasks: make(map[string]*uploadTask),
		byID:        make(map[string]*Attachment),
	}
}

// Events is the one-way channel workers report on. The presentation loop
// drains it and passes each event to Apply.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Turns returns the conversation in order. The returned slice is shared;
// callers must not mutate it.
func (c *Coordinator) Turns() []*Turn {
	return c.turns
}

// Attachments returns pending uploads in selection order.
func (c *Coordinator) Attachments() []*Attachment {
	return c.uploads
}

// Model returns the active model name.
func (c *Coordinator) Model() string {
	return c.cfg.Model
}

// Busy reports whether an exchange is currently running.
func (c *Coordinator) Busy() bool {
	return c.active != nil
}

// SelectImages registers image files and starts one upload task per file.
// Selecting a path that is already pending restarts its upload.
func (c *Coordinator) SelectImages(paths []string) []*Attachment {
	selected := make([]*Attachment, 0, len(paths))
	for _, path := range paths {
		if existing := c.findByPath(path); existing != nil {
			c.removeAttachment(existing.ID)
		}

		att := &Attachment{
			ID:       uuid.NewString(),
			Path:     path,
			MimeType: imaging.DetectMIMEType(path),
			State:    AttachmentPending,
		}
		c.uploads = append(c.uploads, att)
		c.byID[att.ID] = att
		c.uploadTasks[att.ID] = startUpload(context.Background(), att.ID, path, c.encoder, c.events)
		att.State = AttachmentEncoding
		selected = append(selected, att)
		c.logger.Debug().Str("path", path).Str("attachment", att.ID).Msg("upload started")
	}
	return selected
}

// RemoveAttachment drops a pending or failed upload so it no longer
// blocks sending.
func (c *Coordinator) RemoveAttachment(id string) {
	c.removeAttachment(id)
}

// CanSend reports whether a message with the given prompt may be sent:
// the prompt must be non-empty and every attachment must be Ready.
func (c *Coordinator) CanSend(prompt string) bool {
	if strings.TrimSpace(prompt) == "" {
		return false
	}
	for _, att := range c.uploads {
		if att.State != AttachmentReady {
			return false
		}
	}
	return true
}

// SendMessage snapshots the resolved attachments, appends the user turn
// and an empty assistant turn, and starts exactly one exchange. It is
// rejected while another exchange is active. Attachments are cleared once
// the message is sent; images do not persist across turns.
func (c *Coordinator) SendMessage(text string) (*Turn, error) {
	if c.active != nil {
		return nil, ErrExchangeActive
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyPrompt
	}

	images := make([]string, 0, len(c.uploads))
	paths := make([]string, 0, len(c.uploads))
	for _, att := range c.uploads {
		if att.State != AttachmentReady {
			return nil, ErrUploadsPending
		}
		images = append(images, att.Payload)
		paths = append(paths, att.Path)
	}

	userTurn := &Turn{ID: uuid.NewString(), Role: RoleUser, Text: text, Images: paths}
	assistantTurn := &Turn{ID: uuid.NewString(), Role: RoleAssistant}
	c.turns = append(c.turns, userTurn, assistantTurn)

	// Clear-after-send: attachments belong to exactly one message.
	c.clearUploads()

	ctx, cancel := context.WithCancel(context.Background())
	exchange := &Exchange{
		turnID:       assistantTurn.ID,
		client:       c.client,
		model:        c.cfg.Model,
		temperature:  c.cfg.Temperature,
		systemPrompt: c.cfg.SystemPrompt,
		prompt:       text,
		images:       images,
		stream:       c.cfg.Stream,
		events:       c.events,
		cancel:       cancel,
		logger:       c.logger,
	}
	c.active = exchange
	c.activeTurn = assistantTurn

	c.logger.Info().Str("model", c.cfg.Model).Int("images", len(images)).Msg("exchange started")
	go exchange.run(ctx)
	return assistantTurn, nil
}

// Apply folds a worker event into the coordinator state. It returns the
// event annotated with its target and false when the event is stale
// (its upload or exchange was cancelled) and must be suppressed.
func (c *Coordinator) Apply(ev Event) (Event, bool) {
	switch ev.Type {
	case EventUploadProgress, EventUploadReady, EventUploadFailed:
		att, ok := c.byID[ev.AttachmentID]
		if !ok {
			return ev, false
		}
		switch ev.Type {
		case EventUploadProgress:
			if ev.Percent > att.Progress {
				att.Progress = ev.Percent
			}
		case EventUploadReady:
			att.State = AttachmentReady
			att.Progress = 100
			att.Payload = ev.Payload
			delete(c.uploadTasks, att.ID)
		case EventUploadFailed:
			att.State = AttachmentFailed
			att.Err = ev.Err
			delete(c.uploadTasks, att.ID)
		}
		return ev, true

	case EventDelta, EventExchangeFailed, EventExchangeCompleted:
		if c.activeTurn == nil || ev.TurnID != c.activeTurn.ID {
			return ev, false
		}
		switch ev.Type {
		case EventDelta:
			c.activeTurn.Text += ev.Content
		case EventExchangeFailed:
			c.activeTurn.Err = ev.Err
			c.active = nil
			c.activeTurn = nil
		case EventExchangeCompleted:
			c.active = nil
			c.activeTurn = nil
		}
		return ev, true
	}
	return ev, false
}

// CancelActive tears down the running exchange, if any. The partial
// assistant text stays on its turn; no further events for that exchange
// are applied.
func (c *Coordinator) CancelActive() {
	if c.active == nil {
		return
	}
	c.active.cancel()
	c.logger.Info().Msg("exchange cancelled")
	c.active = nil
	c.activeTurn = nil
}

// NewChat cancels the active exchange and every pending upload, then
// resets the conversation.
func (c *Coordinator) NewChat() {
	c.CancelActive()
	c.clearUploads()
	c.turns = nil
}

// SetModel switches the model used for subsequent exchanges.
func (c *Coordinator) SetModel(name string) {
	c.cfg.Model = name
	c.client.SetModel(name)
}

// RefreshModels lists vision-capable models, busting the cache when force
// is set.
func (c *Coordinator) RefreshModels(ctx context.Context, force bool) ([]ollama.ModelInfo, error) {
	return c.client.ListModels(ctx, force)
}

func (c *Coordinator) findByPath(path string) *Attachment {
	for _, att := range c.uploads {
		if att.Path == path {
			return att
		}
	}
	return nil
}

func (c *Coordinator) removeAttachment(id string) {
	if task, ok := c.uploadTasks[id]; ok {
		task.cancel()
		delete(c.uploadTasks, id)
	}
	delete(c.byID, id)
	for i, att := range c.uploads {
		if att.ID == id {
			c.uploads = append(c.uploads[:i], c.uploads[i+1:]...)
			break
		}
	}
}

func (c *Coordinator) clearUploads() {
	for _, task := range c.uploadTasks {
		task.cancel()
	}
	c.uploadTasks = make(map[string]*uploadTask)
	c.byID = make(map[string]*Attachment)
	c.uploads = nil
}
