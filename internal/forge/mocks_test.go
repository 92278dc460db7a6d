package forge_test

import (
	"context"
	"errors"
	"time"

	"meshforge.app/studio/common/llm"
	"meshforge.app/studio/internal/codegen"
	"meshforge.app/studio/internal/compiler"
	"meshforge.app/studio/internal/forge"
	"meshforge.app/studio/internal/model"
	"meshforge.app/studio/internal/store"
)

// mockGenerator implements forge.CodeGenerator for testing.
type mockGenerator struct {
	generateFn func(ctx context.Context, history []model.Message, onEvent func(codegen.Event)) (string, error)
	histories  [][]model.Message
}

func (m *mockGenerator) Generate(ctx context.Context, history []model.Message, onEvent func(codegen.Event)) (string, error) {
	m.histories = append(m.histories, history)
	if m.generateFn != nil {
		return m.generateFn(ctx, history, onEvent)
	}
	return "", errors.New("mock not configured")
}

// mockCompiler implements compiler.Compiler for testing.
type mockCompiler struct {
	previewFn func(ctx context.Context, source string) (*compiler.PreviewResult, error)
	renderFn  func(ctx context.Context, source string, format model.OutputFormat) (*compiler.RenderResult, error)
	lookupFn  func(fileID string, format string) (string, error)

	previewSources []string
}

func (m *mockCompiler) Preview(ctx context.Context, source string) (*compiler.PreviewResult, error) {
	m.previewSources = append(m.previewSources, source)
	if m.previewFn != nil {
		return m.previewFn(ctx, source)
	}
	return nil, errors.New("mock not configured")
}

func (m *mockCompiler) Render(ctx context.Context, source string, format model.OutputFormat) (*compiler.RenderResult, error) {
	if m.renderFn != nil {
		return m.renderFn(ctx, source, format)
	}
	return nil, errors.New("mock not configured")
}

func (m *mockCompiler) Lookup(fileID string, format string) (string, error) {
	if m.lookupFn != nil {
		return m.lookupFn(fileID, format)
	}
	return "", errors.New("mock not configured")
}

// mockAnalyzer implements forge.RejectionAnalyzer for testing.
type mockAnalyzer struct {
	analyzeFn func(ctx context.Context, originalPrompt string, imageDataURL string) forge.RejectionAnalysis
	calls     int
}

func (m *mockAnalyzer) Analyze(ctx context.Context, originalPrompt string, imageDataURL string) forge.RejectionAnalysis {
	m.calls++
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, originalPrompt, imageDataURL)
	}
	return forge.RejectionAnalysis{Plan: "mock plan"}
}

// mockVisionClient implements llm.VisionClient for testing.
type mockVisionClient struct {
	completionFn func(ctx context.Context, req llm.VisionRequest) (string, error)
	lastReq      llm.VisionRequest
}

func (m *mockVisionClient) VisionCompletion(ctx context.Context, req llm.VisionRequest) (string, error) {
	m.lastReq = req
	if m.completionFn != nil {
		return m.completionFn(ctx, req)
	}
	return "", errors.New("mock not configured")
}

func (m *mockVisionClient) Model() string { return "test-vision-model" }

// memMessages is an in-memory store.MessageStore.
type memMessages struct {
	messages []model.Message
	nextID   int64

	failAdds bool
}

func newMemMessages() *memMessages {
	return &memMessages{nextID: 1}
}

func (m *memMessages) seedUser(conversationID int64, content string) {
	_, _ = m.AddUserMessage(context.Background(), conversationID, content)
}

func (m *memMessages) ListByConversation(_ context.Context, conversationID int64) ([]model.Message, error) {
	var out []model.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memMessages) AddUserMessage(_ context.Context, conversationID int64, content string) (*model.Message, error) {
	if m.failAdds {
		return nil, errors.New("storage unavailable")
	}
	msg := model.Message{
		ID:             m.nextID,
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	m.nextID++
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *memMessages) AddAssistantMessage(_ context.Context, conversationID int64, content string, fields store.AssistantFields) (*model.Message, error) {
	if m.failAdds {
		return nil, errors.New("storage unavailable")
	}
	msg := model.Message{
		ID:             m.nextID,
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        content,
		SourceCode:     fields.SourceCode,
		ArtifactURL:    fields.ArtifactURL,
		PreviewURL:     fields.PreviewURL,
		Format:         fields.Format,
		CreatedAt:      time.Now(),
	}
	m.nextID++
	m.messages = append(m.messages, msg)
	return &msg, nil
}
