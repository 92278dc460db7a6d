package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

type openaiClient struct {
	client openai.Client
	model  string
	effort ReasoningEffort
}

func newOpenAIClient(cfg Config) (*openaiClient, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}

	return &openaiClient{
		client: openai.NewClient(opts...),
		model:  model,
		effort: cfg.ReasoningEffort,
	}, nil
}

func (c *openaiClient) Model() string {
	return c.model
}

// StreamCompletion streams chat completion chunks, forwarding each delta as a
// typed event. On a transport failure the accumulated text so far is still
// returned alongside the error, after an error event has been delivered.
func (c *openaiClient) StreamCompletion(ctx context.Context, req StreamRequest, onEvent func(StreamEvent)) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	params := openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            c.convertMessages(req.SystemPrompt, req.Messages),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	effort := req.ReasoningEffort
	if effort == "" {
		effort = c.effort
	}
	if effort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(effort)
	}

	start := time.Now()
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	acc := openai.ChatCompletionAccumulator{}
	openToolCalls := map[string]bool{} // tool call ID -> started

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta

			if delta.Content != "" {
				onEvent(StreamEvent{Kind: EventTextDelta, Text: delta.Content})
			}

			for _, tc := range delta.ToolCalls {
				if tc.ID != "" && !openToolCalls[tc.ID] {
					openToolCalls[tc.ID] = true
					onEvent(StreamEvent{
						Kind:       EventToolCallStart,
						ToolCallID: tc.ID,
						ToolName:   tc.Function.Name,
					})
				}
				if tc.Function.Arguments != "" {
					onEvent(StreamEvent{
						Kind:          EventToolCallDelta,
						ToolCallID:    tc.ID,
						ToolArguments: tc.Function.Arguments,
					})
				}
			}
		}

		if tool, ok := acc.JustFinishedToolCall(); ok {
			onEvent(StreamEvent{
				Kind:       EventToolCallEnd,
				ToolCallID: tool.ID,
				ToolName:   tool.Name,
			})
		}
	}

	text := ""
	if len(acc.Choices) > 0 {
		text = acc.Choices[0].Message.Content
	}

	if err := stream.Err(); err != nil {
		onEvent(StreamEvent{Kind: EventError, ErrMessage: err.Error(), ErrCode: errorCode(err)})
		return &Completion{Text: text}, fmt.Errorf("openai stream: %w", err)
	}

	usage := Usage{
		PromptTokens:     int(acc.Usage.PromptTokens),
		CompletionTokens: int(acc.Usage.CompletionTokens),
	}

	slog.DebugContext(ctx, "stream completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens)

	onEvent(StreamEvent{Kind: EventDone, FullText: text, Usage: &usage})
	return &Completion{Text: text, Usage: usage}, nil
}

// VisionCompletion sends a prompt plus image and returns the raw response
// text. When a schema is supplied the model is constrained to it via the
// structured-output response format.
func (c *openaiClient) VisionCompletion(ctx context.Context, req VisionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: req.ImageDataURL,
		}),
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(parts))

	params := openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}

	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.SchemaName,
					Description: openai.String("Structured response schema"),
					Schema:      req.Schema,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai vision: %w", err)
	}

	slog.DebugContext(ctx, "vision completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openaiClient) convertMessages(systemPrompt string, msgs []Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if systemPrompt != "" {
		result = append(result, openai.SystemMessage(systemPrompt))
	}
	for _, msg := range msgs {
		switch msg.Role {
		case RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

func errorCode(err error) string {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
