package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"meshforge.app/studio/internal/http/handler"
	"meshforge.app/studio/internal/model"
	"meshforge.app/studio/internal/store"
)

var _ = Describe("ConversationHandler", func() {
	var (
		router        *gin.Engine
		conversations *mockConversations
		messages      *mockMessages
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		conversations = &mockConversations{}
		messages = &mockMessages{}

		h := handler.NewConversationHandler(conversations, messages)
		router.GET("/api/conversations", h.List)
		router.GET("/api/conversations/:id", h.Get)
		router.DELETE("/api/conversations/:id", h.Delete)
	})

	do := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("List", func() {
		It("returns conversations most recently updated first", func() {
			title := "a cube"
			conversations.listFn = func(_ context.Context, limit int32) ([]model.Conversation, error) {
				Expect(limit).To(Equal(int32(50)))
				return []model.Conversation{{ID: 2, Title: &title}, {ID: 1}}, nil
			}

			w := do(http.MethodGet, "/api/conversations")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				Conversations []model.Conversation `json:"conversations"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Conversations).To(HaveLen(2))
			Expect(resp.Conversations[0].ID).To(Equal(int64(2)))
		})

		It("honors an explicit limit", func() {
			var gotLimit int32
			conversations.listFn = func(_ context.Context, limit int32) ([]model.Conversation, error) {
				gotLimit = limit
				return nil, nil
			}

			w := do(http.MethodGet, "/api/conversations?limit=5")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotLimit).To(Equal(int32(5)))
			Expect(w.Body.String()).To(ContainSubstring(`"conversations":[]`))
		})

		It("rejects a non-positive limit", func() {
			w := do(http.MethodGet, "/api/conversations?limit=0")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Get", func() {
		It("returns the conversation with its messages", func() {
			title := "a mug"
			conversations.getFn = func(_ context.Context, id int64) (*model.Conversation, error) {
				return &model.Conversation{ID: id, Title: &title}, nil
			}
			messages.listFn = func(_ context.Context, conversationID int64) ([]model.Message, error) {
				return []model.Message{
					{ID: 1, ConversationID: conversationID, Role: model.RoleUser, Content: "a mug"},
					{ID: 2, ConversationID: conversationID, Role: model.RoleAssistant, Content: "preview"},
				}, nil
			}

			w := do(http.MethodGet, "/api/conversations/9")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				Conversation model.Conversation `json:"conversation"`
				Messages     []model.Message    `json:"messages"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Conversation.ID).To(Equal(int64(9)))
			Expect(resp.Messages).To(HaveLen(2))
		})

		It("returns 404 for an unknown conversation", func() {
			w := do(http.MethodGet, "/api/conversations/404")
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("rejects a non-numeric id", func() {
			w := do(http.MethodGet, "/api/conversations/latest")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Delete", func() {
		It("returns 204 on success", func() {
			deleted := []int64{}
			conversations.deleteFn = func(_ context.Context, id int64) error {
				deleted = append(deleted, id)
				return nil
			}

			w := do(http.MethodDelete, "/api/conversations/9")
			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(deleted).To(Equal([]int64{9}))
		})

		It("returns 404 for an unknown conversation", func() {
			conversations.deleteFn = func(_ context.Context, _ int64) error {
				return store.ErrNotFound
			}

			w := do(http.MethodDelete, "/api/conversations/9")
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})
})

var _ = Describe("ArtifactHandler", func() {
	var (
		router  *gin.Engine
		locator *mockLocator
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		locator = &mockLocator{}

		h := handler.NewArtifactHandler(locator)
		router.GET("/api/models/:file_id", h.Get)
	})

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("serves the resolved file with its content type", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "model.stl")
		Expect(os.WriteFile(path, []byte("solid cube"), 0o644)).To(Succeed())
		locator.lookupFn = func(fileID string, format string) (string, error) {
			Expect(fileID).To(Equal("abc"))
			Expect(format).To(Equal("stl"))
			return path, nil
		}

		w := do("/api/models/abc?format=stl")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(Equal("model/stl"))
		Expect(w.Body.String()).To(Equal("solid cube"))
	})

	It("requires a format parameter", func() {
		w := do("/api/models/abc")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("maps lookup failures to 404", func() {
		w := do("/api/models/abc?format=stl")
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})
})
