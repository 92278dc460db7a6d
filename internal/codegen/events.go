package codegen

import (
	"fmt"

	"meshforge.app/studio/common/llm"
)

// EventKind tags the closed union of generation events the agent emits.
type EventKind string

const (
	EventCodeDelta      EventKind = "code_delta"
	EventReasoningDelta EventKind = "reasoning_delta"
	EventToolCallStart  EventKind = "tool_call_start"
	EventToolCallDelta  EventKind = "tool_call_delta"
	EventToolCallEnd    EventKind = "tool_call_end"
	EventDone           EventKind = "done"
	EventError          EventKind = "error"
)

// Event is a single generation event. Exactly one done or error terminates a
// generation call; deltas may arrive zero or more times before it.
type Event struct {
	Kind EventKind

	Text string // code_delta / reasoning_delta fragment

	ToolCallID    string
	ToolName      string
	ToolArguments string

	Code       string     // done: the full cleaned artifact
	Usage      *llm.Usage // done: token usage when reported
	ErrMessage string     // error
	ErrCode    string     // error
}

// FromProviderEvent maps a provider stream event to the generation event
// union. Every provider variant must have a mapping; an unknown kind is a
// programming error surfaced loudly rather than dropped.
func FromProviderEvent(ev llm.StreamEvent) Event {
	switch ev.Kind {
	case llm.EventTextDelta:
		return Event{Kind: EventCodeDelta, Text: ev.Text}
	case llm.EventReasoningDelta:
		return Event{Kind: EventReasoningDelta, Text: ev.Text}
	case llm.EventToolCallStart:
		return Event{Kind: EventToolCallStart, ToolCallID: ev.ToolCallID, ToolName: ev.ToolName}
	case llm.EventToolCallDelta:
		return Event{Kind: EventToolCallDelta, ToolCallID: ev.ToolCallID, ToolArguments: ev.ToolArguments}
	case llm.EventToolCallEnd:
		return Event{Kind: EventToolCallEnd, ToolCallID: ev.ToolCallID, ToolName: ev.ToolName}
	case llm.EventDone:
		return Event{Kind: EventDone, Code: ev.FullText, Usage: ev.Usage}
	case llm.EventError:
		return Event{Kind: EventError, ErrMessage: ev.ErrMessage, ErrCode: ev.ErrCode}
	default:
		panic(fmt.Sprintf("unmapped provider event kind %q", ev.Kind))
	}
}
