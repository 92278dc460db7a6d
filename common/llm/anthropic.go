package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	client anthropic.Client
	model  string
	effort ReasoningEffort
}

func newAnthropicClient(cfg Config) (*anthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}

	return &anthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
		effort: cfg.ReasoningEffort,
	}, nil
}

func (c *anthropicClient) Model() string {
	return c.model
}

// thinkingBudget maps a reasoning effort to an extended-thinking token budget.
func thinkingBudget(effort ReasoningEffort) int64 {
	switch effort {
	case ReasoningEffortLow:
		return 2048
	case ReasoningEffortMedium:
		return 8192
	case ReasoningEffortHigh:
		return 16384
	default:
		return 0
	}
}

func (c *anthropicClient) StreamCompletion(ctx context.Context, req StreamRequest, onEvent func(StreamEvent)) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  c.convertMessages(req.Messages),
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	effort := req.ReasoningEffort
	if effort == "" {
		effort = c.effort
	}
	if budget := thinkingBudget(effort); budget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	start := time.Now()
	stream := c.client.Messages.NewStreaming(ctx, params)

	var text strings.Builder
	message := anthropic.Message{}
	toolBlocks := map[int64]string{} // content block index -> tool call ID

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			onEvent(StreamEvent{Kind: EventError, ErrMessage: err.Error()})
			return &Completion{Text: text.String()}, fmt.Errorf("anthropic accumulate: %w", err)
		}

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				toolBlocks[ev.Index] = block.ID
				onEvent(StreamEvent{
					Kind:       EventToolCallStart,
					ToolCallID: block.ID,
					ToolName:   block.Name,
				})
			}

		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				text.WriteString(delta.Text)
				onEvent(StreamEvent{Kind: EventTextDelta, Text: delta.Text})
			case anthropic.ThinkingDelta:
				onEvent(StreamEvent{Kind: EventReasoningDelta, Text: delta.Thinking})
			case anthropic.InputJSONDelta:
				onEvent(StreamEvent{
					Kind:          EventToolCallDelta,
					ToolCallID:    toolBlocks[ev.Index],
					ToolArguments: delta.PartialJSON,
				})
			}

		case anthropic.ContentBlockStopEvent:
			if id, ok := toolBlocks[ev.Index]; ok {
				onEvent(StreamEvent{Kind: EventToolCallEnd, ToolCallID: id})
				delete(toolBlocks, ev.Index)
			}
		}
	}

	if err := stream.Err(); err != nil {
		onEvent(StreamEvent{Kind: EventError, ErrMessage: err.Error()})
		return &Completion{Text: text.String()}, fmt.Errorf("anthropic stream: %w", err)
	}

	usage := Usage{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
	}

	slog.DebugContext(ctx, "stream completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", usage.PromptTokens,
		"output_tokens", usage.CompletionTokens,
		"stop_reason", message.StopReason)

	onEvent(StreamEvent{Kind: EventDone, FullText: text.String(), Usage: &usage})
	return &Completion{Text: text.String(), Usage: usage}, nil
}

// VisionCompletion sends a prompt plus image. Anthropic has no structured
// response format, so the JSON contract rides in the prompt; callers fall
// back to treating the raw response as free text when parsing fails.
func (c *anthropicClient) VisionCompletion(ctx context.Context, req VisionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	mediaType, data, err := splitDataURL(req.ImageDataURL)
	if err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, data),
				anthropic.NewTextBlock(req.Prompt),
			),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic vision: %w", err)
	}

	slog.DebugContext(ctx, "vision completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}

func (c *anthropicClient) convertMessages(msgs []Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result
}

// splitDataURL splits "data:image/png;base64,XXXX" into media type and data.
func splitDataURL(dataURL string) (mediaType, data string, err error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", "", fmt.Errorf("image is not a data URL")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("malformed image data URL")
	}
	mediaType = strings.TrimSuffix(meta, ";base64")
	if mediaType == "" {
		mediaType = "image/png"
	}
	return mediaType, data, nil
}
