package store

import (
	"context"
	"errors"

	"meshforge.app/studio/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ConversationStore defines the contract for conversation data access.
type ConversationStore interface {
	Create(ctx context.Context, title *string) (*model.Conversation, error)
	Get(ctx context.Context, id int64) (*model.Conversation, error)
	List(ctx context.Context, limit int32) ([]model.Conversation, error)
	Delete(ctx context.Context, id int64) error // cascades to messages
}

// AssistantFields are the optional payloads an assistant message may carry.
type AssistantFields struct {
	SourceCode  *string
	ArtifactURL *string
	PreviewURL  *string
	Format      *string
}

// MessageStore defines the contract for the append-only message log. Every
// append bumps the owning conversation's updated_at.
type MessageStore interface {
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error)
	AddUserMessage(ctx context.Context, conversationID int64, content string) (*model.Message, error)
	AddAssistantMessage(ctx context.Context, conversationID int64, content string, fields AssistantFields) (*model.Message, error)
}
