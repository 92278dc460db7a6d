package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"meshforge.app/studio/common/logger"
	"meshforge.app/studio/internal/codegen"
	"meshforge.app/studio/internal/compiler"
	"meshforge.app/studio/internal/forge"
	"meshforge.app/studio/internal/model"
	"meshforge.app/studio/internal/retry"
	"meshforge.app/studio/internal/store"
)

const (
	actionGenerate       = "generate"
	actionFinalize       = "finalize"
	actionRejectAndRetry = "reject_preview_and_retry"
)

// Workflow is the orchestrator surface the generate endpoint drives.
type Workflow interface {
	Run(ctx context.Context, conversationID int64, format model.OutputFormat, cb forge.Callbacks) (*compiler.PreviewResult, error)
	Finalize(ctx context.Context, conversationID int64, format model.OutputFormat) (*compiler.RenderResult, error)
	RejectAndRetry(ctx context.Context, conversationID int64, format model.OutputFormat, cb forge.Callbacks) (*compiler.PreviewResult, error)
}

type GenerateHandler struct {
	workflow      Workflow
	conversations store.ConversationStore
	messages      store.MessageStore
	lock          *ConversationLock
}

func NewGenerateHandler(workflow Workflow, conversations store.ConversationStore, messages store.MessageStore, lock *ConversationLock) *GenerateHandler {
	return &GenerateHandler{
		workflow:      workflow,
		conversations: conversations,
		messages:      messages,
		lock:          lock,
	}
}

type generateRequest struct {
	Prompt         string `json:"prompt"`
	Format         string `json:"format" binding:"required"`
	ConversationID *int64 `json:"conversation_id"`
	Action         string `json:"action" binding:"required"`
}

// Stream runs one workflow action and streams its lifecycle as SSE. Input
// validation fails fast with a JSON error before any stream bytes are
// written; once streaming starts, failures surface as a terminal error event
// and the connection closes.
func (h *GenerateHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	format, err := model.ParseOutputFormat(req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req.Prompt = strings.TrimSpace(req.Prompt)

	switch req.Action {
	case actionGenerate:
		if req.Prompt == "" && req.ConversationID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required to start a generation"})
			return
		}
	case actionFinalize, actionRejectAndRetry:
		if req.ConversationID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id is required for " + req.Action})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
		return
	}

	var (
		conversation *model.Conversation
		created      bool
	)
	if req.ConversationID != nil {
		conversation, err = h.conversations.Get(ctx, *req.ConversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return
			}
			slog.ErrorContext(ctx, "failed to load conversation", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
			return
		}
	} else {
		title := model.TitleFromPrompt(req.Prompt)
		conversation, err = h.conversations.Create(ctx, &title)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create conversation", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
			return
		}
		created = true
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(conversation.ID),
		Component:      "studio.http.generate",
	})

	release, acquired, err := h.lock.Acquire(ctx, conversation.ID)
	if err != nil {
		slog.ErrorContext(ctx, "conversation lock unavailable", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to acquire conversation lock"})
		return
	}
	if !acquired {
		c.JSON(http.StatusConflict, gin.H{"error": "a generation is already running for this conversation"})
		return
	}
	defer release()

	if req.Action == actionGenerate && req.Prompt != "" {
		if _, err := h.messages.AddUserMessage(ctx, conversation.ID, req.Prompt); err != nil {
			slog.ErrorContext(ctx, "failed to record prompt", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record prompt"})
			return
		}
	}

	setSSEHeaders(c.Writer)
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	s := &stream{writer: c.Writer, flusher: flusher}
	if created {
		s.write(eventConversationCreated, gin.H{
			"conversation_id": conversation.ID,
			"title":           conversation.Title,
		})
	}

	switch req.Action {
	case actionGenerate, actionRejectAndRetry:
		h.streamPreview(ctx, s, req.Action, conversation.ID, format)
	case actionFinalize:
		h.streamFinalize(ctx, s, conversation.ID, format)
	}
}

func (h *GenerateHandler) streamPreview(ctx context.Context, s *stream, action string, conversationID int64, format model.OutputFormat) {
	cb := forge.Callbacks{
		OnAttemptStart: func(ac retry.AttemptContext, status string) {
			s.write(eventGenerationStart, gin.H{
				"attempt":      ac.Attempt,
				"max_attempts": ac.MaxAttempts,
				"status":       status,
			})
		},
		OnEvent: func(ev codegen.Event) {
			name, payload := wireEvent(ev)
			if name == eventError {
				// Terminal on the wire; the orchestrator decides whether
				// the partial generation is usable.
				slog.WarnContext(ctx, "generation stream reported an error", "error", ev.ErrMessage, "code", ev.ErrCode)
				return
			}
			s.write(name, payload)
		},
		OnCompiling: func() {
			s.write(eventCompiling, gin.H{})
		},
		OnPreviewReady: func(result *compiler.PreviewResult, msg *model.Message) {
			s.write(eventPreviewReady, gin.H{
				"preview_url": result.PreviewURL,
				"file_id":     result.FileID,
				"message_id":  msg.ID,
			})
		},
		OnValidating: func() {
			s.write(eventValidating, gin.H{})
		},
		OnValidationFailed: func(analysis forge.RejectionAnalysis) {
			s.write(eventValidationFailed, gin.H{
				"issues": analysis.Issues,
				"plan":   analysis.Plan,
			})
		},
	}

	var err error
	if action == actionRejectAndRetry {
		_, err = h.workflow.RejectAndRetry(ctx, conversationID, format, cb)
	} else {
		_, err = h.workflow.Run(ctx, conversationID, format, cb)
	}
	if err != nil {
		s.fail(ctx, err)
	}
	// Success ends at preview_ready: finalize is a separate request, so no
	// completed event is emitted here.
}

func (h *GenerateHandler) streamFinalize(ctx context.Context, s *stream, conversationID int64, format model.OutputFormat) {
	s.write(eventOutputting, gin.H{"format": string(format)})

	result, err := h.workflow.Finalize(ctx, conversationID, format)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	s.write(eventCompleted, gin.H{
		"artifact_url": result.ArtifactURL,
		"file_id":      result.FileID,
		"format":       string(format),
	})
}

// stream wraps the SSE writer with flushing on every event.
type stream struct {
	writer  gin.ResponseWriter
	flusher http.Flusher
}

func (s *stream) write(event string, data any) {
	sseWrite(s.writer, event, data)
	s.flusher.Flush()
}

func (s *stream) fail(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "streamed action failed", "error", err)
	s.write(eventError, gin.H{"error": userFacingError(err)})
}

// userFacingError keeps precondition and exhaustion messages intact and
// genericizes everything else.
func userFacingError(err error) string {
	var exhausted *retry.ExhaustedError
	switch {
	case errors.Is(err, forge.ErrNoGeneratedCode), errors.Is(err, forge.ErrNoPendingPreview):
		return err.Error()
	case errors.As(err, &exhausted):
		return exhausted.Error()
	default:
		return "generation failed"
	}
}
