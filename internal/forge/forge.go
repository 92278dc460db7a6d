// Package forge drives the generation-retry-compile workflow: request code
// from the generation agent, compile a preview, classify failures, feed them
// back into conversation history, and pause for human approval once a preview
// succeeds. Approval and rejection are separate entry points, so the
// wait-for-human step has no in-process representation.
package forge

import (
	"errors"

	"meshforge.app/studio/internal/codegen"
	"meshforge.app/studio/internal/compiler"
	"meshforge.app/studio/internal/model"
	"meshforge.app/studio/internal/retry"
)

var (
	// ErrNoGeneratedCode is returned by Finalize when no assistant message in
	// the conversation carries generated source.
	ErrNoGeneratedCode = errors.New("no generated code available")

	// ErrNoPendingPreview is returned by RejectAndRetry when no assistant
	// message is awaiting approval (preview without artifact).
	ErrNoPendingPreview = errors.New("no pending preview to reject")
)

// Callbacks deliver lifecycle and generation events to the transport layer.
// Events for one attempt always complete before the next attempt begins. Any
// nil callback is skipped.
type Callbacks struct {
	// OnAttemptStart reports a human-readable status for the attempt,
	// distinguishing a first attempt from a retry after a failure.
	OnAttemptStart func(ac retry.AttemptContext, status string)
	// OnEvent forwards every generation stream event unmodified in shape.
	OnEvent func(ev codegen.Event)
	// OnCompiling fires when generated source is submitted to the compiler.
	OnCompiling func()
	// OnPreviewReady fires after a successful preview compile, with the
	// persisted pending-approval message.
	OnPreviewReady func(result *compiler.PreviewResult, msg *model.Message)
	// OnValidating fires when a rejected preview enters vision analysis.
	OnValidating func()
	// OnValidationFailed reports the structured rejection analysis.
	OnValidationFailed func(analysis RejectionAnalysis)
}

func (cb Callbacks) attemptStart(ac retry.AttemptContext, status string) {
	if cb.OnAttemptStart != nil {
		cb.OnAttemptStart(ac, status)
	}
}

func (cb Callbacks) event(ev codegen.Event) {
	if cb.OnEvent != nil {
		cb.OnEvent(ev)
	}
}

func (cb Callbacks) compiling() {
	if cb.OnCompiling != nil {
		cb.OnCompiling()
	}
}

func (cb Callbacks) previewReady(result *compiler.PreviewResult, msg *model.Message) {
	if cb.OnPreviewReady != nil {
		cb.OnPreviewReady(result, msg)
	}
}

func (cb Callbacks) validating() {
	if cb.OnValidating != nil {
		cb.OnValidating()
	}
}

func (cb Callbacks) validationFailed(analysis RejectionAnalysis) {
	if cb.OnValidationFailed != nil {
		cb.OnValidationFailed(analysis)
	}
}
