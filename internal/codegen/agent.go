// Package codegen wraps the streaming completion client with the OpenSCAD
// generation contract: history in, cleaned source artifact out, with every
// stream event forwarded to the caller as it arrives.
package codegen

import (
	"context"
	"errors"
	"log/slog"

	"meshforge.app/studio/common/llm"
	"meshforge.app/studio/common/logger"
	"meshforge.app/studio/internal/model"
)

// ErrEmptyHistory is returned when generation is requested with no messages.
var ErrEmptyHistory = errors.New("message history is empty")

// Agent generates OpenSCAD source from conversation history.
type Agent struct {
	llm       llm.StreamClient
	maxTokens int
}

func NewAgent(client llm.StreamClient, maxTokens int) *Agent {
	return &Agent{llm: client, maxTokens: maxTokens}
}

// Generate streams a completion over the conversation history, forwarding
// every event to onEvent, and returns the cleaned final artifact. The
// returned string and the Code carried by the final done event are identical.
//
// A provider error event is forwarded and whatever text accumulated is still
// returned; the caller's retry logic decides whether it is usable.
func (a *Agent) Generate(ctx context.Context, history []model.Message, onEvent func(Event)) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "studio.codegen.agent"})

	req := llm.StreamRequest{
		SystemPrompt: systemPrompt,
		Messages:     buildTurns(history),
		MaxTokens:    a.maxTokens,
	}

	var final string
	completion, err := a.llm.StreamCompletion(ctx, req, func(ev llm.StreamEvent) {
		mapped := FromProviderEvent(ev)
		if mapped.Kind == EventDone {
			// The artifact in the done event must match the returned string,
			// so cleanup happens before forwarding.
			mapped.Code = CleanCode(mapped.Code)
			final = mapped.Code
		}
		onEvent(mapped)
	})
	if err != nil {
		// The error event was already forwarded by the stream client. Resolve
		// with the accumulated text; downstream compilation judges it.
		accumulated := ""
		if completion != nil {
			accumulated = CleanCode(completion.Text)
		}
		slog.WarnContext(ctx, "generation stream ended with error, returning accumulated text",
			"error", err,
			"accumulated_len", len(accumulated))
		return accumulated, nil
	}

	slog.DebugContext(ctx, "generation complete",
		"code_len", len(final),
		"prompt_tokens", completion.Usage.PromptTokens,
		"completion_tokens", completion.Usage.CompletionTokens)

	return final, nil
}

// buildTurns converts stored messages into provider turns. User messages keep
// their content; assistant messages contribute their generated source (not
// prose), so the model sees prior code directly. Assistant messages without
// source are skipped.
func buildTurns(history []model.Message) []llm.Message {
	turns := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case model.RoleUser:
			turns = append(turns, llm.Message{Role: llm.RoleUser, Content: msg.Content})
		case model.RoleAssistant:
			if msg.HasSource() {
				turns = append(turns, llm.Message{Role: llm.RoleAssistant, Content: *msg.SourceCode})
			}
		}
	}
	return turns
}
