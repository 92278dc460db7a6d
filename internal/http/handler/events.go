package handler

import (
	"fmt"

	"meshforge.app/studio/internal/codegen"
)

// Wire-level SSE event names. Generation events carry the codegen union
// re-tagged for the transport; the rest are lifecycle events emitted by the
// generate handler itself.
const (
	eventConversationCreated = "conversation_created"
	eventGenerationStart     = "generation_start"
	eventCodeDelta           = "code_delta"
	eventReasoningDelta      = "reasoning_delta"
	eventToolCallStart       = "tool_call_start"
	eventToolCallDelta       = "tool_call_delta"
	eventToolCallEnd         = "tool_call_end"
	eventCodeComplete        = "code_complete"
	eventCompiling           = "compiling"
	eventPreviewReady        = "preview_ready"
	eventValidating          = "validating"
	eventValidationFailed    = "validation_failed"
	eventOutputting          = "outputting"
	eventCompleted           = "completed"
	eventError               = "error"
)

// wireEvent converts a generation event into its SSE name and payload. Every
// kind of the generation union must map; an unknown kind is a programming
// error. The error kind maps too, but the generate handler filters it out
// before writing: a mid-generation provider error is not a stream-terminal
// condition.
func wireEvent(ev codegen.Event) (string, any) {
	switch ev.Kind {
	case codegen.EventCodeDelta:
		return eventCodeDelta, map[string]any{"text": ev.Text}
	case codegen.EventReasoningDelta:
		return eventReasoningDelta, map[string]any{"text": ev.Text}
	case codegen.EventToolCallStart:
		return eventToolCallStart, map[string]any{"tool_call_id": ev.ToolCallID, "tool_name": ev.ToolName}
	case codegen.EventToolCallDelta:
		return eventToolCallDelta, map[string]any{"tool_call_id": ev.ToolCallID, "arguments": ev.ToolArguments}
	case codegen.EventToolCallEnd:
		return eventToolCallEnd, map[string]any{"tool_call_id": ev.ToolCallID, "tool_name": ev.ToolName}
	case codegen.EventDone:
		payload := map[string]any{"code": ev.Code}
		if ev.Usage != nil {
			payload["usage"] = ev.Usage
		}
		return eventCodeComplete, payload
	case codegen.EventError:
		return eventError, map[string]any{"error": ev.ErrMessage, "code": ev.ErrCode}
	default:
		panic(fmt.Sprintf("unmapped generation event kind %q", ev.Kind))
	}
}
