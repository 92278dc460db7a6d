package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"meshforge.app/studio/internal/codegen"
	"meshforge.app/studio/internal/compiler"
	"meshforge.app/studio/internal/forge"
	"meshforge.app/studio/internal/http/handler"
	"meshforge.app/studio/internal/model"
	"meshforge.app/studio/internal/retry"
	"meshforge.app/studio/internal/store"
)

var _ = Describe("GenerateHandler", func() {
	var (
		router        *gin.Engine
		workflow      *mockWorkflow
		conversations *mockConversations
		messages      *mockMessages
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		workflow = &mockWorkflow{}
		conversations = &mockConversations{}
		messages = &mockMessages{}

		h := handler.NewGenerateHandler(workflow, conversations, messages, handler.NewConversationLock(nil, 0))
		router.POST("/api/generate", h.Stream)
	})

	post := func(body map[string]any) *httptest.ResponseRecorder {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBuffer(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	existingConversation := func(id int64) {
		conversations.getFn = func(_ context.Context, got int64) (*model.Conversation, error) {
			if got == id {
				title := "existing"
				return &model.Conversation{ID: id, Title: &title}, nil
			}
			return nil, store.ErrNotFound
		}
	}

	Describe("input validation", func() {
		It("rejects a missing format", func() {
			w := post(map[string]any{"prompt": "a cube", "action": "generate"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects an unsupported format", func() {
			w := post(map[string]any{"prompt": "a cube", "format": "obj", "action": "generate"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("obj"))
		})

		It("rejects png as a generation target", func() {
			w := post(map[string]any{"prompt": "a cube", "format": "png", "action": "generate"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects an unknown action", func() {
			w := post(map[string]any{"prompt": "a cube", "format": "stl", "action": "summon"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("unknown action"))
		})

		It("rejects generate without a prompt or conversation", func() {
			w := post(map[string]any{"format": "stl", "action": "generate"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("prompt"))
		})

		It("rejects finalize without a conversation id", func() {
			w := post(map[string]any{"format": "stl", "action": "finalize"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for an unknown conversation before streaming", func() {
			w := post(map[string]any{"format": "stl", "action": "finalize", "conversation_id": 7})
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(w.Header().Get("Content-Type")).NotTo(ContainSubstring("text/event-stream"))
			Expect(workflow.runCalls).To(BeEmpty())
		})
	})

	Describe("action generate", func() {
		BeforeEach(func() {
			conversations.createFn = func(_ context.Context, title *string) (*model.Conversation, error) {
				return &model.Conversation{ID: 101, Title: title}, nil
			}
			workflow.runFn = func(_ context.Context, _ int64, _ model.OutputFormat, cb forge.Callbacks) (*compiler.PreviewResult, error) {
				cb.OnAttemptStart(retry.AttemptContext{Attempt: 1, MaxAttempts: 2}, "Generating OpenSCAD source")
				cb.OnEvent(codegen.Event{Kind: codegen.EventCodeDelta, Text: "cube("})
				cb.OnEvent(codegen.Event{Kind: codegen.EventDone, Code: "cube(20);"})
				cb.OnCompiling()
				result := &compiler.PreviewResult{FileID: "f1", PreviewURL: "http://host/api/models/f1?format=png"}
				cb.OnPreviewReady(result, &model.Message{ID: 5})
				return result, nil
			}
		})

		It("creates a conversation, records the prompt and streams to preview_ready", func() {
			w := post(map[string]any{"prompt": "a 20mm cube", "format": "stl", "action": "generate"})

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(ContainSubstring("text/event-stream"))
			Expect(messages.userMessages).To(ConsistOf("a 20mm cube"))
			Expect(sseEvents(w.Body.String())).To(Equal([]string{
				"conversation_created",
				"generation_start",
				"code_delta",
				"code_complete",
				"compiling",
				"preview_ready",
			}))
			Expect(w.Body.String()).To(ContainSubstring(`"title":"a 20mm cube"`))
			Expect(w.Body.String()).To(ContainSubstring("format=png"))
		})

		It("does not emit completed for a successful generate", func() {
			w := post(map[string]any{"prompt": "a 20mm cube", "format": "stl", "action": "generate"})
			Expect(sseEvents(w.Body.String())).NotTo(ContainElement("completed"))
		})

		It("continues an existing conversation without conversation_created", func() {
			existingConversation(33)
			w := post(map[string]any{"prompt": "make it hollow", "format": "stl", "action": "generate", "conversation_id": 33})

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(sseEvents(w.Body.String())).NotTo(ContainElement("conversation_created"))
			Expect(messages.userMessages).To(ConsistOf("make it hollow"))
			Expect(workflow.runCalls).To(Equal([]int64{33}))
		})

		It("derives the title from a long prompt with truncation", func() {
			long := make([]rune, 0, 120)
			for i := 0; i < 120; i++ {
				long = append(long, 'x')
			}
			var captured *string
			conversations.createFn = func(_ context.Context, title *string) (*model.Conversation, error) {
				captured = title
				return &model.Conversation{ID: 101, Title: title}, nil
			}

			post(map[string]any{"prompt": string(long), "format": "stl", "action": "generate"})
			Expect(captured).NotTo(BeNil())
			Expect(*captured).To(HaveLen(model.TitleMaxLen))
		})

		It("emits a terminal error event when every attempt fails", func() {
			workflow.runFn = func(_ context.Context, _ int64, _ model.OutputFormat, _ forge.Callbacks) (*compiler.PreviewResult, error) {
				return nil, &retry.ExhaustedError{Attempts: 2, Last: &retry.Failure{Kind: retry.FailureCompilation, Message: "syntax error"}}
			}

			w := post(map[string]any{"prompt": "a cube", "format": "stl", "action": "generate"})
			events := sseEvents(w.Body.String())
			Expect(events[len(events)-1]).To(Equal("error"))
			Expect(w.Body.String()).To(ContainSubstring("all 2 attempts failed"))
		})

		It("swallows provider error events instead of terminating the stream", func() {
			workflow.runFn = func(_ context.Context, _ int64, _ model.OutputFormat, cb forge.Callbacks) (*compiler.PreviewResult, error) {
				cb.OnEvent(codegen.Event{Kind: codegen.EventError, ErrMessage: "stream hiccup"})
				cb.OnCompiling()
				result := &compiler.PreviewResult{FileID: "f1", PreviewURL: "u"}
				cb.OnPreviewReady(result, &model.Message{ID: 5})
				return result, nil
			}

			w := post(map[string]any{"prompt": "a cube", "format": "stl", "action": "generate"})
			Expect(sseEvents(w.Body.String())).To(Equal([]string{
				"conversation_created",
				"compiling",
				"preview_ready",
			}))
		})
	})

	Describe("action finalize", func() {
		BeforeEach(func() {
			existingConversation(33)
		})

		It("streams outputting then completed with the artifact URL", func() {
			workflow.finalizeFn = func(_ context.Context, id int64, format model.OutputFormat) (*compiler.RenderResult, error) {
				Expect(id).To(Equal(int64(33)))
				Expect(format).To(Equal(model.Format3MF))
				return &compiler.RenderResult{FileID: "final", ArtifactURL: "http://host/api/models/final?format=3mf"}, nil
			}

			w := post(map[string]any{"format": "3mf", "action": "finalize", "conversation_id": 33})
			Expect(sseEvents(w.Body.String())).To(Equal([]string{"outputting", "completed"}))
			Expect(w.Body.String()).To(ContainSubstring("format=3mf"))
		})

		It("surfaces the missing-source precondition as a named error event", func() {
			workflow.finalizeFn = func(_ context.Context, _ int64, _ model.OutputFormat) (*compiler.RenderResult, error) {
				return nil, forge.ErrNoGeneratedCode
			}

			w := post(map[string]any{"format": "stl", "action": "finalize", "conversation_id": 33})
			Expect(sseEvents(w.Body.String())).To(Equal([]string{"outputting", "error"}))
			Expect(w.Body.String()).To(ContainSubstring("no generated code"))
		})

		It("genericizes unexpected failures", func() {
			workflow.finalizeFn = func(_ context.Context, _ int64, _ model.OutputFormat) (*compiler.RenderResult, error) {
				return nil, context.DeadlineExceeded
			}

			w := post(map[string]any{"format": "stl", "action": "finalize", "conversation_id": 33})
			Expect(w.Body.String()).To(ContainSubstring("generation failed"))
			Expect(w.Body.String()).NotTo(ContainSubstring("deadline"))
		})
	})

	Describe("action reject_preview_and_retry", func() {
		BeforeEach(func() {
			existingConversation(33)
		})

		It("streams validation events followed by the new generation", func() {
			workflow.rejectFn = func(_ context.Context, _ int64, _ model.OutputFormat, cb forge.Callbacks) (*compiler.PreviewResult, error) {
				cb.OnValidating()
				cb.OnValidationFailed(forge.RejectionAnalysis{Issues: []string{"too small"}, Plan: "scale up"})
				cb.OnAttemptStart(retry.AttemptContext{Attempt: 1, MaxAttempts: 2, LastFailure: &retry.Failure{Kind: retry.FailureValidation}}, "Retrying generation (attempt 1/2) after validation failure")
				cb.OnCompiling()
				result := &compiler.PreviewResult{FileID: "f2", PreviewURL: "u"}
				cb.OnPreviewReady(result, &model.Message{ID: 6})
				return result, nil
			}

			w := post(map[string]any{"format": "stl", "action": "reject_preview_and_retry", "conversation_id": 33})
			Expect(sseEvents(w.Body.String())).To(Equal([]string{
				"validating",
				"validation_failed",
				"generation_start",
				"compiling",
				"preview_ready",
			}))
			Expect(w.Body.String()).To(ContainSubstring("scale up"))
			Expect(messages.userMessages).To(BeEmpty())
		})

		It("surfaces the missing-preview precondition as a named error event", func() {
			workflow.rejectFn = func(_ context.Context, _ int64, _ model.OutputFormat, _ forge.Callbacks) (*compiler.PreviewResult, error) {
				return nil, forge.ErrNoPendingPreview
			}

			w := post(map[string]any{"format": "stl", "action": "reject_preview_and_retry", "conversation_id": 33})
			events := sseEvents(w.Body.String())
			Expect(events[len(events)-1]).To(Equal("error"))
			Expect(w.Body.String()).To(ContainSubstring("no pending preview"))
		})
	})
})
