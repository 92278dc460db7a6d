package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Business context (conversation_id, attempt, etc.) flows through
// context enrichment so individual log statements never repeat it.
type LogFields struct {
	ConversationID *int64  // conversation owning the generation request
	MessageID      *int64  // message being recorded
	FileID         *string // compile file ID for the current attempt
	Attempt        *int    // 1-indexed attempt number within the retry budget
	Format         *string // requested output format
	Component      string  // component name (e.g., "studio.forge.orchestrator")
}

// WithLogFields enriches context with structured log fields. Multiple calls
// merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context, or empty LogFields if none
// are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ConversationID != nil {
		result.ConversationID = next.ConversationID
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.FileID != nil {
		result.FileID = next.FileID
	}
	if next.Attempt != nil {
		result.Attempt = next.Attempt
	}
	if next.Format != nil {
		result.Format = next.Format
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr creates a pointer from a value, for setting LogFields inline.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging prompts and diagnostics.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
