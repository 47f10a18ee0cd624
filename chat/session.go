package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/visionchat/visionchat/ollama"
)

// Exchange drives one request/response cycle against the model server:
// assemble the message list, issue the streaming request, and forward
// content deltas in arrival order. Errors at any stage become a single
// EventExchangeFailed; they never escape the goroutine.
type Exchange struct {
	turnID       string
	client       streamer
	model        string
	temperature  float64
	systemPrompt string
	prompt       string
	images       []string
	stream       bool
	events       chan<- Event
	cancel       context.CancelFunc
	logger       zerolog.Logger

	state ExchangeState
}

// buildMessages assembles the ordered wire messages: optional system turn,
// then the user turn carrying the prompt and any encoded images.
func (e *Exchange) buildMessages() []ollama.Message {
	var messages []ollama.Message
	if e.systemPrompt != "" {
		messages = append(messages, ollama.Message{Role: ollama.RoleSystem, Content: e.systemPrompt})
	}
	messages = append(messages, ollama.Message{
		Role:    ollama.RoleUser,
		Content: e.prompt,
		Images:  e.images,
	})
	return messages
}

func (e *Exchange) run(ctx context.Context) {
	req := &ollama.ChatRequest{
		Model:       e.model,
		Messages:    e.buildMessages(),
		Stream:      e.stream,
		Temperature: e.temperature,
	}

	if !e.stream {
		e.runOnce(ctx, req)
		return
	}

	e.state = ExchangeSending
	chunks, err := e.client.ChatStream(ctx, req)
	if err != nil {
		e.fail(ctx, err)
		return
	}

	e.state = ExchangeStreaming
	for chunk := range chunks {
		if ctx.Err() != nil {
			e.state = ExchangeCancelled
			return
		}
		// A truncated stream is a failure, not a quiet completion.
		if chunk.Err != nil {
			e.fail(ctx, chunk.Err)
			return
		}
		if chunk.Message.Role != ollama.RoleAssistant || chunk.Message.Content == "" {
			continue
		}
		if !e.emit(ctx, Event{Type: EventDelta, TurnID: e.turnID, Content: chunk.Message.Content}) {
			e.state = ExchangeCancelled
			return
		}
	}

	if ctx.Err() != nil {
		e.state = ExchangeCancelled
		return
	}
	e.state = ExchangeCompleted
	e.emit(ctx, Event{Type: EventExchangeCompleted, TurnID: e.turnID})
}

// runOnce is the simplified non-streaming path: one parsed response, one
// delta, then completion.
func (e *Exchange) runOnce(ctx context.Context, req *ollama.ChatRequest) {
	e.state = ExchangeSending
	chunk, err := e.client.Chat(ctx, req)
	if err != nil {
		e.fail(ctx, err)
		return
	}

	if chunk.Message.Role == ollama.RoleAssistant && chunk.Message.Content != "" {
		if !e.emit(ctx, Event{Type: EventDelta, TurnID: e.turnID, Content: chunk.Message.Content}) {
			e.state = ExchangeCancelled
			return
		}
	}
	e.state = ExchangeCompleted
	e.emit(ctx, Event{Type: EventExchangeCompleted, TurnID: e.turnID})
}

func (e *Exchange) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		e.state = ExchangeCancelled
		return
	}
	e.state = ExchangeFailed
	e.logger.Warn().Err(err).Str("turn", e.turnID).Msg("exchange failed")
	e.emit(ctx, Event{Type: EventExchangeFailed, TurnID: e.turnID, Err: fmt.Sprintf("%v", err)})
}

func (e *Exchange) emit(ctx context.Context, ev Event) bool {
	select {
	case e.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
