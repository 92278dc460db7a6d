package forge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"meshforge.app/studio/common/logger"
	"meshforge.app/studio/internal/codegen"
	"meshforge.app/studio/internal/compiler"
	"meshforge.app/studio/internal/model"
	"meshforge.app/studio/internal/retry"
	"meshforge.app/studio/internal/store"
)

// CodeGenerator produces model source from conversation history, streaming
// incremental events along the way.
type CodeGenerator interface {
	Generate(ctx context.Context, history []model.Message, onEvent func(codegen.Event)) (string, error)
}

// Orchestrator runs the generate-compile-retry loop for a conversation and
// owns the approval transitions that follow a successful preview.
type Orchestrator struct {
	generator   CodeGenerator
	compiler    compiler.Compiler
	messages    store.MessageStore
	analyzer    RejectionAnalyzer
	maxAttempts int
}

func NewOrchestrator(generator CodeGenerator, comp compiler.Compiler, messages store.MessageStore, analyzer RejectionAnalyzer, maxAttempts int) *Orchestrator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Orchestrator{
		generator:   generator,
		compiler:    comp,
		messages:    messages,
		analyzer:    analyzer,
		maxAttempts: maxAttempts,
	}
}

// Run executes the generation-retry loop for a conversation until a preview
// compiles or the attempt budget is exhausted. Each attempt re-reads the
// conversation history, so feedback recorded by earlier failed attempts (and
// by rejected previews) is visible to the generator. On success the generated
// source is persisted as a pending-approval assistant message carrying the
// preview reference but no artifact.
func (o *Orchestrator) Run(ctx context.Context, conversationID int64, format model.OutputFormat, cb Callbacks) (*compiler.PreviewResult, error) {
	return o.run(ctx, conversationID, format, cb, nil)
}

// run is the shared loop body. seed describes a failure that happened before
// this budget started (a rejected preview), so the first attempt's status
// reads as a retry rather than a fresh generation.
func (o *Orchestrator) run(ctx context.Context, conversationID int64, format model.OutputFormat, cb Callbacks, seed *retry.Failure) (*compiler.PreviewResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(conversationID),
		Format:         logger.Ptr(string(format)),
		Component:      "studio.forge.orchestrator",
	})

	hooks := retry.Hooks{
		OnAttemptStart: func(ac retry.AttemptContext) {
			if ac.Attempt == 1 && ac.LastFailure == nil {
				ac.LastFailure = seed
			}
			status := attemptStatus(ac)
			slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{Attempt: logger.Ptr(ac.Attempt)}),
				"generation attempt starting", "status", status)
			cb.attemptStart(ac, status)
		},
		OnAttemptFailed: func(ac retry.AttemptContext, err error) {
			slog.WarnContext(logger.WithLogFields(ctx, logger.LogFields{Attempt: logger.Ptr(ac.Attempt)}),
				"generation attempt failed", "error", err)
		},
	}

	return retry.Run(ctx, o.maxAttempts, hooks, func(ctx context.Context, ac retry.AttemptContext) (*compiler.PreviewResult, error) {
		return o.attempt(logger.WithLogFields(ctx, logger.LogFields{Attempt: logger.Ptr(ac.Attempt)}), conversationID, ac, cb)
	})
}

func (o *Orchestrator) attempt(ctx context.Context, conversationID int64, ac retry.AttemptContext, cb Callbacks) (result *compiler.PreviewResult, err error) {
	sc := logger.StartSpan(ctx, "forge.attempt")
	defer func() {
		sc.RecordError(err)
		sc.End()
	}()
	ctx = sc.Context()

	history, err := o.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	source, err := o.generator.Generate(ctx, history, cb.event)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	cb.compiling()

	result, err = o.compiler.Preview(ctx, source)
	if err != nil {
		var compileErr *compiler.CompileError
		if !errors.As(err, &compileErr) {
			return nil, fmt.Errorf("preview compile: %w", err)
		}
		// Record the failed attempt into history before deciding whether to
		// retry, so the next attempt (in this budget or a later request) sees
		// both the broken source and the compiler's feedback.
		if recErr := o.recordCompileFailure(ctx, conversationID, ac.Attempt, source, compileErr.Diagnostic); recErr != nil {
			return nil, recErr
		}
		return nil, &retry.Failure{Kind: retry.FailureCompilation, Message: compileErr.Diagnostic}
	}

	msg, err := o.recordPendingPreview(ctx, conversationID, source, result)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{FileID: logger.Ptr(result.FileID)}),
		"preview compiled, awaiting approval", "message_id", msg.ID)
	cb.previewReady(result, msg)
	return result, nil
}

func (o *Orchestrator) recordCompileFailure(ctx context.Context, conversationID int64, attempt int, source, diagnostic string) error {
	content := fmt.Sprintf("Attempt %d produced OpenSCAD source that failed to compile.", attempt)
	if _, err := o.messages.AddAssistantMessage(ctx, conversationID, content, store.AssistantFields{
		SourceCode: logger.Ptr(source),
	}); err != nil {
		return fmt.Errorf("failed to record failed attempt: %w", err)
	}
	if _, err := o.messages.AddUserMessage(ctx, conversationID, compileFeedback(diagnostic)); err != nil {
		return fmt.Errorf("failed to record compiler feedback: %w", err)
	}
	return nil
}

func (o *Orchestrator) recordPendingPreview(ctx context.Context, conversationID int64, source string, result *compiler.PreviewResult) (*model.Message, error) {
	msg, err := o.messages.AddAssistantMessage(ctx, conversationID,
		"Generated a model preview. It is awaiting your approval.",
		store.AssistantFields{
			SourceCode: logger.Ptr(source),
			PreviewURL: logger.Ptr(result.PreviewURL),
			Format:     logger.Ptr(string(model.FormatPNG)),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to record pending preview: %w", err)
	}
	return msg, nil
}

func attemptStatus(ac retry.AttemptContext) string {
	if ac.LastFailure == nil {
		return "Generating OpenSCAD source"
	}
	return fmt.Sprintf("Retrying generation (attempt %d/%d) after %s failure", ac.Attempt, ac.MaxAttempts, ac.LastFailure.Kind)
}

func compileFeedback(diagnostic string) string {
	d := compiler.ParseDiagnostic(diagnostic)
	location := ""
	if d.Line != nil {
		location = fmt.Sprintf(" (line %d", *d.Line)
		if d.Column != nil {
			location += fmt.Sprintf(", column %d", *d.Column)
		}
		location += ")"
	}
	return fmt.Sprintf(
		"The OpenSCAD code failed to compile%s with this error:\n\n%s\n\nFix the error and return the complete corrected OpenSCAD source, preserving the original design intent.",
		location, d.Message)
}

func validationFeedback(analysis RejectionAnalysis) string {
	body := "The rendered preview was rejected after visual inspection."
	if len(analysis.Issues) > 0 {
		body += "\n\nIssues found:"
		for _, issue := range analysis.Issues {
			body += "\n- " + issue
		}
	}
	body += "\n\nPlan: " + analysis.Plan
	body += "\n\nRevise the model accordingly and return the complete corrected OpenSCAD source."
	return body
}
