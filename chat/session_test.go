package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionchat/visionchat/ollama"
)

// fakeClient is a scriptable Client for exercising the session layer
// without a server.
type fakeClient struct {
	mu       sync.Mutex
	lastReq  *ollama.ChatRequest
	model    string
	chatFn   func(ctx context.Context, req *ollama.ChatRequest) (*ollama.ChatChunk, error)
	streamFn func(ctx context.Context, req *ollama.ChatRequest) (<-chan ollama.ChatChunk, error)
}

func (f *fakeClient) Chat(ctx context.Context, req *ollama.ChatRequest) (*ollama.ChatChunk, error) {
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	return f.chatFn(ctx, req)
}

func (f *fakeClient) ChatStream(ctx context.Context, req *ollama.ChatRequest) (<-chan ollama.ChatChunk, error) {
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	return f.streamFn(ctx, req)
}

func (f *fakeClient) ListModels(context.Context, bool) ([]ollama.ModelInfo, error) {
	return nil, nil
}

func (f *fakeClient) SetModel(name string) {
	f.mu.Lock()
	f.model = name
	f.mu.Unlock()
}

func (f *fakeClient) request() *ollama.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// assistantChunks builds a stream function that emits the given contents
// as assistant deltas and then closes.
func assistantChunks(contents ...string) func(context.Context, *ollama.ChatRequest) (<-chan ollama.ChatChunk, error) {
	return func(ctx context.Context, _ *ollama.ChatRequest) (<-chan ollama.ChatChunk, error) {
		ch := make(chan ollama.ChatChunk)
		go func() {
			defer close(ch)
			for _, content := range contents {
				select {
				case ch <- ollama.ChatChunk{Message: ollama.Message{Role: ollama.RoleAssistant, Content: content}}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch, nil
	}
}

func nextEvent(t *testing.T, c *Coordinator) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// pumpExchange applies events until the exchange reaches a terminal event.
func pumpExchange(t *testing.T, c *Coordinator) []Event {
	t.Helper()
	var applied []Event
	for {
		ev, ok := c.Apply(nextEvent(t, c))
		if ok {
			applied = append(applied, ev)
		}
		if ok && (ev.Type == EventExchangeCompleted || ev.Type == EventExchangeFailed) {
			return applied
		}
	}
}

func newStreamingCoordinator(client Client) *Coordinator {
	return NewCoordinator(client, Config{Model: "llama3.2-vision:latest", Temperature: 0.7, Stream: true})
}

func TestSendMessageStreamsDeltasInOrder(t *testing.T) {
	client := &fakeClient{streamFn: assistantChunks("A ", "cat.")}
	c := newStreamingCoordinator(client)

	turn, err := c.SendMessage("Describe this image")
	require.NoError(t, err)

	events := pumpExchange(t, c)

	require.Len(t, events, 3)
	assert.Equal(t, EventDelta, events[0].Type)
	assert.Equal(t, "A ", events[0].Content)
	assert.Equal(t, "cat.", events[1].Content)
	assert.Equal(t, EventExchangeCompleted, events[2].Type)
	for _, ev := range events {
		assert.Equal(t, turn.ID, ev.TurnID)
	}

	assert.Equal(t, "A cat.", turn.Text)
	assert.False(t, c.Busy())

	req := client.request()
	assert.Equal(t, "llama3.2-vision:latest", req.Model)
	assert.True(t, req.Stream)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, ollama.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "Describe this image", req.Messages[0].Content)
}

func TestSendMessageIncludesSystemPromptAndImages(t *testing.T) {
	client := &fakeClient{streamFn: assistantChunks("ok")}
	c := NewCoordinator(client, Config{Stream: true, SystemPrompt: "You describe images."})

	// Inject a resolved attachment the way Apply would.
	att := c.SelectImages([]string{"/nonexistent/p.png"})[0]
	_, ok := c.Apply(Event{Type: EventUploadReady, AttachmentID: att.ID, Payload: "UGF5bG9hZA=="})
	require.True(t, ok)

	_, err := c.SendMessage("Describe this image")
	require.NoError(t, err)
	pumpExchange(t, c)

	req := client.request()
	require.Len(t, req.Messages, 2)
	assert.Equal(t, ollama.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "You describe images.", req.Messages[0].Content)
	assert.Equal(t, []string{"UGF5bG9hZA=="}, req.Messages[1].Images)

	// Clear-after-send: the attachment does not carry into the next turn.
	assert.Empty(t, c.Attachments())
}

func TestSecondSendRejectedWhileActive(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{
		streamFn: func(ctx context.Context, _ *ollama.ChatRequest) (<-chan ollama.ChatChunk, error) {
			ch := make(chan ollama.ChatChunk)
			go func() {
				defer close(ch)
				select {
				case <-release:
				case <-ctx.Done():
				}
			}()
			return ch, nil
		},
	}
	c := newStreamingCoordinator(client)

	_, err := c.SendMessage("first")
	require.NoError(t, err)

	_, err = c.SendMessage("second")
	assert.ErrorIs(t, err, ErrExchangeActive)
	assert.Len(t, c.Turns(), 2)

	close(release)
	pumpExchange(t, c)
}

func TestExchangeFailureAnnotatesAssistantTurn(t *testing.T) {
	client := &fakeClient{
		streamFn: func(context.Context, *ollama.ChatRequest) (<-chan ollama.ChatChunk, error) {
			return nil, &ollama.APIError{StatusCode: 500, Message: "model exploded"}
		},
	}
	c := newStreamingCoordinator(client)

	turn, err := c.SendMessage("hello")
	require.NoError(t, err)

	events := pumpExchange(t, c)
	require.Len(t, events, 1)
	assert.Equal(t, EventExchangeFailed, events[0].Type)
	assert.Contains(t, turn.Err, "model exploded")

	// Prior turns survive the failure.
	require.Len(t, c.Turns(), 2)
	assert.Equal(t, "hello", c.Turns()[0].Text)
	assert.False(t, c.Busy())
}

func TestCancelSuppressesFurtherEvents(t *testing.T) {
	// Endless stream: only cancellation ends it.
	client := &fakeClient{
		streamFn: func(ctx context.Context, _ *ollama.ChatRequest) (<-chan ollama.ChatChunk, error) {
			ch := make(chan ollama.ChatChunk)
			go func() {
				defer close(ch)
				for {
					select {
					case ch <- ollama.ChatChunk{Message: ollama.Message{Role: ollama.RoleAssistant, Content: "x"}}:
					case <-ctx.Done():
						return
					}
				}
			}()
			return ch, nil
		},
	}
	c := newStreamingCoordinator(client)

	turn, err := c.SendMessage("go")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, ok := c.Apply(nextEvent(t, c))
		require.True(t, ok)
	}
	textAtCancel := turn.Text

	c.CancelActive()
	assert.False(t, c.Busy())

	// Anything already queued is stale and must be suppressed.
	for {
		select {
		case ev := <-c.Events():
			_, ok := c.Apply(ev)
			assert.False(t, ok)
		case <-time.After(200 * time.Millisecond):
			assert.Equal(t, textAtCancel, turn.Text)
			return
		}
	}
}

func TestMidStreamDisconnectFailsExchange(t *testing.T) {
	client := &fakeClient{
		streamFn: func(ctx context.Context, _ *ollama.ChatRequest) (<-chan ollama.ChatChunk, error) {
			ch := make(chan ollama.ChatChunk, 2)
			ch <- ollama.ChatChunk{Message: ollama.Message{Role: ollama.RoleAssistant, Content: "A "}}
			ch <- ollama.ChatChunk{Err: &ollama.APIError{Message: "unexpected EOF"}}
			close(ch)
			return ch, nil
		},
	}
	c := newStreamingCoordinator(client)

	turn, err := c.SendMessage("Describe this image")
	require.NoError(t, err)

	events := pumpExchange(t, c)
	require.NotEmpty(t, events)
	assert.Equal(t, EventExchangeFailed, events[len(events)-1].Type)

	// The partial reply stays visible, annotated with the failure.
	assert.Equal(t, "A ", turn.Text)
	assert.Contains(t, turn.Err, "unexpected EOF")
	assert.False(t, c.Busy())
}

func TestNonStreamingModeEmitsSingleDelta(t *testing.T) {
	client := &fakeClient{
		chatFn: func(context.Context, *ollama.ChatRequest) (*ollama.ChatChunk, error) {
			return &ollama.ChatChunk{
				Message: ollama.Message{Role: ollama.RoleAssistant, Content: "A cat."},
				Done:    true,
			}, nil
		},
	}
	c := NewCoordinator(client, Config{Stream: false})

	turn, err := c.SendMessage("Describe this image")
	require.NoError(t, err)

	events := pumpExchange(t, c)
	require.Len(t, events, 2)
	assert.Equal(t, EventDelta, events[0].Type)
	assert.Equal(t, "A cat.", events[0].Content)
	assert.Equal(t, EventExchangeCompleted, events[1].Type)
	assert.Equal(t, "A cat.", turn.Text)
	assert.False(t, client.request().Stream)
}

func TestNonAssistantChunksAreIgnored(t *testing.T) {
	client := &fakeClient{
		streamFn: func(ctx context.Context, _ *ollama.ChatRequest) (<-chan ollama.ChatChunk, error) {
			ch := make(chan ollama.ChatChunk, 4)
			ch <- ollama.ChatChunk{Message: ollama.Message{Role: "user", Content: "echo"}}
			ch <- ollama.ChatChunk{Message: ollama.Message{Role: ollama.RoleAssistant, Content: ""}}
			ch <- ollama.ChatChunk{Message: ollama.Message{Role: ollama.RoleAssistant, Content: "only this"}}
			close(ch)
			return ch, nil
		},
	}
	c := newStreamingCoordinator(client)

	turn, err := c.SendMessage("hi")
	require.NoError(t, err)

	pumpExchange(t, c)
	assert.Equal(t, "only this", turn.Text)
}
