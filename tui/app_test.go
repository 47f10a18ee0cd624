package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionchat/visionchat/chat"
	"github.com/visionchat/visionchat/ollama"
)

// stubClient satisfies chat.Client with a canned streaming reply.
type stubClient struct {
	contents []string
}

func (s *stubClient) Chat(context.Context, *ollama.ChatRequest) (*ollama.ChatChunk, error) {
	return &ollama.ChatChunk{Message: ollama.Message{Role: ollama.RoleAssistant, Content: strings.Join(s.contents, "")}, Done: true}, nil
}

func (s *stubClient) ChatStream(ctx context.Context, _ *ollama.ChatRequest) (<-chan ollama.ChatChunk, error) {
	ch := make(chan ollama.ChatChunk, len(s.contents))
	for _, content := range s.contents {
		ch <- ollama.ChatChunk{Message: ollama.Message{Role: ollama.RoleAssistant, Content: content}}
	}
	close(ch)
	return ch, nil
}

func (s *stubClient) ListModels(context.Context, bool) ([]ollama.ModelInfo, error) {
	return []ollama.ModelInfo{{Name: "llava:13b", Family: "llava"}}, nil
}

func (s *stubClient) SetModel(string) {}

func newTestApp(contents ...string) *App {
	coordinator := chat.NewCoordinator(&stubClient{contents: contents}, chat.Config{
		Model:  "llava:13b",
		Stream: true,
	})
	app := New(coordinator)
	model, _ := app.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return model.(*App)
}

func TestViewShowsActiveModel(t *testing.T) {
	app := newTestApp()
	assert.Contains(t, app.View(), "llava:13b")
}

func TestSendRendersDeltasInArrivalOrder(t *testing.T) {
	app := newTestApp("A ", "cat.")

	app.handleInput("Describe this image")
	require.True(t, app.coordinator.Busy())

	// Drain the exchange the way Update would, one event per message.
	deadline := time.After(2 * time.Second)
	for app.coordinator.Busy() {
		select {
		case ev := <-app.coordinator.Events():
			app.Update(coordinatorEventMsg(ev))
		case <-deadline:
			t.Fatal("exchange never completed")
		}
	}

	turns := app.coordinator.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "A cat.", turns[1].Text)
	assert.Contains(t, app.viewport.View(), "A cat.")
}

func TestSendBlockedWhileUploadsPending(t *testing.T) {
	app := newTestApp("ok")

	app.coordinator.SelectImages([]string{"/tmp/not-finished.png"})
	app.handleInput("hello")

	assert.False(t, app.coordinator.Busy())
	assert.Contains(t, app.status, "waiting for attachments")
}

func TestUploadCommand(t *testing.T) {
	app := newTestApp("ok")

	app.handleInput("/upload /tmp/a.png /tmp/b.jpg")
	assert.Len(t, app.coordinator.Attachments(), 2)
	assert.Contains(t, app.status, "uploading 2")
}
