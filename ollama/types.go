package ollama

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message in the server's wire format.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Images holds base64-encoded images for vision-capable models.
	Images []string `json:"images,omitempty"`
}

// ChatRequest is the payload for POST api/chat.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}

// ChatChunk is one decoded object from the newline-delimited response
// stream. In non-streaming mode the single response body has the same
// shape with Done set.
type ChatChunk struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`
	Done      bool      `json:"done"`

	// Err is set on the final chunk when the stream ended on a read
	// failure instead of a done marker. Never part of the wire format.
	Err error `json:"-"`
}

// ModelInfo describes an installed model, assembled from api/tags and
// api/show. Instances are rebuilt wholesale on every refresh.
type ModelInfo struct {
	Name         string
	Description  string
	Format       string
	Family       string
	Tag          string
	Size         int64
	Capabilities map[string]any
	Parameters   map[string]any
}

// DisplayName renders the model for list display: base name, family and
// size, e.g. "llama3.2-vision [llama] 7.9GB".
func (m ModelInfo) DisplayName() string {
	base := m.Name
	if idx := strings.Index(base, ":"); idx != -1 {
		base = base[:idx]
	}
	parts := []string{base}
	if m.Family != "" {
		parts = append(parts, fmt.Sprintf("[%s]", m.Family))
	}
	if m.Size > 0 {
		parts = append(parts, fmt.Sprintf("%.1fGB", float64(m.Size)/1024/1024/1024))
	}
	return strings.Join(parts, " ")
}

// ClientOptions contains options for creating a client.
type ClientOptions struct {
	BaseURL      string
	Timeout      time.Duration
	DefaultModel string
	Temperature  float64
	Headers      map[string]string
	Classifier   VisionClassifier
	Logger       zerolog.Logger
}

// ClientOption is a functional option for configuring clients.
type ClientOption func(*ClientOptions)

// WithBaseURL sets the server base URL.
func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) {
		o.BaseURL = url
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.Timeout = timeout
	}
}

// WithModel sets the default model.
func WithModel(model string) ClientOption {
	return func(o *ClientOptions) {
		o.DefaultModel = model
	}
}

// WithTemperature sets the sampling temperature sent with chat requests.
func WithTemperature(temperature float64) ClientOption {
	return func(o *ClientOptions) {
		o.Temperature = temperature
	}
}

// WithHeaders sets additional request headers.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *ClientOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}

// WithClassifier replaces the vision-capability classifier used when
// listing models.
func WithClassifier(c VisionClassifier) ClientOption {
	return func(o *ClientOptions) {
		o.Classifier = c
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(o *ClientOptions) {
		o.Logger = logger
	}
}
