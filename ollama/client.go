package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL     = "http://localhost:11434"
	defaultTimeout     = 120 * time.Second // Longer timeout for local models
	defaultModel       = "llama3.2-vision:latest"
	defaultTemperature = 0.7

	chatEndpoint = "api/chat"
	tagsEndpoint = "api/tags"
	showEndpoint = "api/show"

	// maxStreamLineBytes caps one newline-delimited response object. A
	// long assistant delta can exceed bufio.Scanner's 64 KiB default.
	maxStreamLineBytes = 1 << 20
)

// APIError is returned for non-2xx responses and connection-level
// failures. StatusCode is 0 when the request never reached the server.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed: %s", e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Client talks to a local Ollama server.
type Client struct {
	options    ClientOptions
	httpClient *http.Client
	logger     zerolog.Logger

	mu          sync.Mutex
	model       string
	lastError   string
	modelsCache []ModelInfo
}

// NewClient creates a new client. The base URL may also come from the
// OLLAMA_URL environment variable when no explicit option overrides it.
func NewClient(opts ...ClientOption) (*Client, error) {
	options := ClientOptions{
		BaseURL:      defaultBaseURL,
		Timeout:      defaultTimeout,
		DefaultModel: defaultModel,
		Temperature:  defaultTemperature,
		Headers:      make(map[string]string),
		Classifier:   DefaultClassifier(),
		Logger:       zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.BaseURL == defaultBaseURL {
		if envURL := os.Getenv("OLLAMA_URL"); envURL != "" {
			options.BaseURL = envURL
		}
	}
	options.BaseURL = strings.TrimRight(options.BaseURL, "/")

	if u, err := url.Parse(options.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", options.BaseURL)
	}

	return &Client{
		options:    options,
		httpClient: &http.Client{Timeout: options.Timeout},
		logger:     options.Logger,
		model:      options.DefaultModel,
	}, nil
}

// Ping verifies the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.request(ctx, http.MethodGet, tagsEndpoint, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Model returns the currently selected model.
func (c *Client) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// SetModel switches the model used for subsequent chat requests.
func (c *Client) SetModel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = name
}

// Temperature returns the configured sampling temperature.
func (c *Client) Temperature() float64 {
	return c.options.Temperature
}

// LastError returns the most recent transport-level error message, if any.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *Client) setLastError(msg string) {
	c.mu.Lock()
	c.lastError = msg
	c.mu.Unlock()
}

// request issues one HTTP call and maps failures to *APIError. The caller
// owns the response body. Streaming consumers scan it line by line;
// non-streaming consumers decode it directly.
func (c *Client) request(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.options.BaseURL+"/"+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "visionchat/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.options.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setLastError(err.Error())
		c.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("request failed")
		return nil, &APIError{Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(raw))
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
			msg = payload.Error
		}
		c.logger.Debug().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("request rejected")
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return resp, nil
}

// getJSON issues a non-streaming GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err), Err: err}
	}
	return nil
}

// postJSON issues a non-streaming POST and decodes the JSON body into out.
func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	resp, err := c.request(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err), Err: err}
	}
	return nil
}

// Chat sends a non-streaming chat request and returns the single response.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatChunk, error) {
	c.applyDefaults(req)
	req.Stream = false

	var chunk ChatChunk
	if err := c.postJSON(ctx, chatEndpoint, req, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// ChatStream sends a streaming chat request. Decoded chunks arrive on the
// returned channel in wire order; the channel closes when the stream ends
// or ctx is cancelled. Blank and malformed lines are skipped: the server
// may emit keep-alive noise between well-formed objects. A read failure
// mid-stream (connection reset, truncated body) is not skippable noise:
// it is delivered as a final chunk with Err set before the channel closes.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest) (<-chan ChatChunk, error) {
	c.applyDefaults(req)
	req.Stream = true

	resp, err := c.request(ctx, http.MethodPost, chatEndpoint, req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan ChatChunk)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var chunk ChatChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}

			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			c.setLastError(err.Error())
			c.logger.Debug().Err(err).Msg("stream read failed")
			select {
			case chunks <- ChatChunk{Err: &APIError{Message: err.Error(), Err: err}}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

func (c *Client) applyDefaults(req *ChatRequest) {
	if req.Model == "" {
		req.Model = c.Model()
	}
	// Zero is a valid sampling temperature; only negative means unset.
	if req.Temperature < 0 {
		req.Temperature = c.options.Temperature
	}
}
