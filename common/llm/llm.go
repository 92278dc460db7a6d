package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ReasoningEffort controls the amount of reasoning for supported models.
type ReasoningEffort string

const (
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

// Config holds LLM client configuration.
type Config struct {
	Provider        string // "openai" or "anthropic"
	APIKey          string // Required: API key for the provider
	BaseURL         string // Optional: custom API endpoint
	Model           string // Model name
	ReasoningEffort ReasoningEffort
}

// Message is a provider-agnostic conversation turn.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Message roles accepted in StreamRequest.Messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StreamEventKind tags the closed union of streaming completion events.
type StreamEventKind string

const (
	EventTextDelta      StreamEventKind = "text_delta"
	EventReasoningDelta StreamEventKind = "reasoning_delta"
	EventToolCallStart  StreamEventKind = "tool_call_start"
	EventToolCallDelta  StreamEventKind = "tool_call_delta"
	EventToolCallEnd    StreamEventKind = "tool_call_end"
	EventDone           StreamEventKind = "done"
	EventError          StreamEventKind = "error"
)

// Usage carries token counts for a completed call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// StreamEvent is one element of a completion stream. Exactly one terminal
// event (done or error) ends every StreamCompletion call; deltas may arrive
// zero or more times before it.
type StreamEvent struct {
	Kind StreamEventKind

	// Delta payload for text_delta and reasoning_delta.
	Text string

	// Tool-call lifecycle fields.
	ToolCallID    string
	ToolName      string
	ToolArguments string // argument fragment for tool_call_delta

	// Terminal payloads.
	FullText   string // done: complete accumulated text
	Usage      *Usage // done: token usage when the provider reports it
	ErrMessage string // error
	ErrCode    string // error: machine-readable code when available
}

// StreamRequest describes one streaming completion call.
type StreamRequest struct {
	SystemPrompt    string
	Messages        []Message
	MaxTokens       int
	ReasoningEffort ReasoningEffort
}

// Completion is the aggregated result of a streaming call.
type Completion struct {
	Text  string
	Usage Usage
}

// StreamClient streams typed completion events. Implementations deliver
// events in provider order and always finish with exactly one done or error
// event before returning.
type StreamClient interface {
	StreamCompletion(ctx context.Context, req StreamRequest, onEvent func(StreamEvent)) (*Completion, error)
	Model() string
}

// VisionRequest describes a single-shot completion over a prompt plus image.
type VisionRequest struct {
	SystemPrompt string
	Prompt       string
	ImageDataURL string // base64 data URL of the image
	SchemaName   string // optional: structured-output schema name
	Schema       any    // optional: JSON schema for the response
	MaxTokens    int
}

// VisionClient performs non-streaming vision-capable completions.
type VisionClient interface {
	VisionCompletion(ctx context.Context, req VisionRequest) (string, error)
	Model() string
}

// NewStreamClient creates a StreamClient for the configured provider.
// Defaults to Anthropic if no provider is specified.
func NewStreamClient(cfg Config) (StreamClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderAnthropic
	}

	switch provider {
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// NewVisionClient creates a VisionClient for the configured provider.
func NewVisionClient(cfg Config) (VisionClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// GenerateSchema generates a JSON schema from a type, for structured-output
// response contracts.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// IsRetryable classifies a provider error as retryable (rate limits, server
// errors, network failures) or not (client errors, cancellation).
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			slog.WarnContext(ctx, "llm rate limited, will retry",
				"status_code", apiErr.StatusCode)
			return true
		case apiErr.StatusCode >= 500:
			slog.WarnContext(ctx, "llm server error, will retry",
				"status_code", apiErr.StatusCode)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable",
				"status_code", apiErr.StatusCode,
				"error_type", apiErr.Type,
				"error_code", apiErr.Code)
			return false
		}
	}

	// Network errors (no API response) are generally retryable
	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}
