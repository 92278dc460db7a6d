package forge

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"meshforge.app/studio/common/logger"
	"meshforge.app/studio/internal/compiler"
	"meshforge.app/studio/internal/model"
	"meshforge.app/studio/internal/retry"
	"meshforge.app/studio/internal/store"
)

// Finalize compiles the most recently generated source into the requested
// model format and records the artifact as a new assistant message. It is the
// approval half of the review step: the preview message itself is untouched,
// so the conversation keeps both the preview and the final artifact.
func (o *Orchestrator) Finalize(ctx context.Context, conversationID int64, format model.OutputFormat) (*compiler.RenderResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(conversationID),
		Format:         logger.Ptr(string(format)),
		Component:      "studio.forge.orchestrator",
	})

	history, err := o.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	source := latestSource(history)
	if source == "" {
		return nil, ErrNoGeneratedCode
	}

	result, err := o.compiler.Render(ctx, source, format)
	if err != nil {
		return nil, fmt.Errorf("final render: %w", err)
	}

	msg, err := o.messages.AddAssistantMessage(ctx, conversationID,
		fmt.Sprintf("Final %s model generated.", strings.ToUpper(string(format))),
		store.AssistantFields{
			SourceCode:  logger.Ptr(source),
			ArtifactURL: logger.Ptr(result.ArtifactURL),
			Format:      logger.Ptr(string(format)),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to record final artifact: %w", err)
	}

	slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{FileID: logger.Ptr(result.FileID)}),
		"final model rendered", "message_id", msg.ID)
	return result, nil
}

// RejectAndRetry handles a rejected preview: it runs vision analysis over the
// rejected image against the original prompt, records the analysis as
// validation feedback in the conversation, and re-enters the generation loop
// with a fresh attempt budget. If no preview is pending the conversation is
// left untouched.
func (o *Orchestrator) RejectAndRetry(ctx context.Context, conversationID int64, format model.OutputFormat, cb Callbacks) (*compiler.PreviewResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(conversationID),
		Format:         logger.Ptr(string(format)),
		Component:      "studio.forge.orchestrator",
	})

	history, err := o.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	pending := latestPendingPreview(history)
	if pending == nil {
		return nil, ErrNoPendingPreview
	}

	cb.validating()

	imageDataURL, err := o.loadPreviewImage(*pending.PreviewURL)
	if err != nil {
		// The analyzer degrades gracefully without an image too, but a
		// missing preview file means the workspace is gone; surface it.
		return nil, fmt.Errorf("failed to load rejected preview: %w", err)
	}

	analysis := o.analyzer.Analyze(ctx, originalPrompt(history), imageDataURL)
	cb.validationFailed(analysis)

	if _, err := o.messages.AddUserMessage(ctx, conversationID, validationFeedback(analysis)); err != nil {
		return nil, fmt.Errorf("failed to record rejection feedback: %w", err)
	}

	seed := &retry.Failure{Kind: retry.FailureValidation, Message: analysis.Plan}
	return o.run(ctx, conversationID, format, cb, seed)
}

// loadPreviewImage resolves a preview URL back to its file via the compiler
// workspace and encodes it as a data URL for the vision model.
func (o *Orchestrator) loadPreviewImage(previewURL string) (string, error) {
	fileID, err := previewFileID(previewURL)
	if err != nil {
		return "", err
	}
	path, err := o.compiler.Lookup(fileID, string(model.FormatPNG))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read preview image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// previewFileID extracts the file id from a retrieval URL of the form
// <base>/api/models/<id>?format=png.
func previewFileID(previewURL string) (string, error) {
	u, err := url.Parse(previewURL)
	if err != nil {
		return "", fmt.Errorf("malformed preview URL %q: %w", previewURL, err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	id := segments[len(segments)-1]
	if id == "" {
		return "", fmt.Errorf("malformed preview URL %q: no file id", previewURL)
	}
	return id, nil
}

// latestSource returns the source of the most recent assistant message that
// carries generated code, or "" when none exists.
func latestSource(history []model.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleAssistant && history[i].HasSource() {
			return *history[i].SourceCode
		}
	}
	return ""
}

// latestPendingPreview returns the most recent assistant message that has a
// preview awaiting approval, or nil.
func latestPendingPreview(history []model.Message) *model.Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleAssistant && history[i].IsPendingApproval() {
			return &history[i]
		}
	}
	return nil
}

// originalPrompt returns the first user message content, the request the
// whole conversation is trying to satisfy.
func originalPrompt(history []model.Message) string {
	for _, msg := range history {
		if msg.Role == model.RoleUser {
			return msg.Content
		}
	}
	return ""
}
