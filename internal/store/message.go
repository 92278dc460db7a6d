package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"meshforge.app/studio/common/id"
	"meshforge.app/studio/core/db"
	"meshforge.app/studio/internal/model"
)

type messageStore struct {
	db *db.DB
}

// NewMessageStore creates a pgx-backed MessageStore.
func NewMessageStore(database *db.DB) MessageStore {
	return &messageStore{db: database}
}

func (s *messageStore) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT id, conversation_id, role, content, source_code, artifact_url, preview_url, format, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at, id`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&msg.SourceCode, &msg.ArtifactURL, &msg.PreviewURL, &msg.Format, &msg.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (s *messageStore) AddUserMessage(ctx context.Context, conversationID int64, content string) (*model.Message, error) {
	return s.append(ctx, model.Message{
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        content,
	})
}

func (s *messageStore) AddAssistantMessage(ctx context.Context, conversationID int64, content string, fields AssistantFields) (*model.Message, error) {
	return s.append(ctx, model.Message{
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        content,
		SourceCode:     fields.SourceCode,
		ArtifactURL:    fields.ArtifactURL,
		PreviewURL:     fields.PreviewURL,
		Format:         fields.Format,
	})
}

// append inserts the message and bumps the conversation's updated_at in one
// transaction, keeping the ordered-log invariant intact.
func (s *messageStore) append(ctx context.Context, msg model.Message) (*model.Message, error) {
	msg.ID = id.New()

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, source_code, artifact_url, preview_url, format)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING created_at`,
			msg.ID, msg.ConversationID, msg.Role, msg.Content,
			msg.SourceCode, msg.ArtifactURL, msg.PreviewURL, msg.Format)
		if err := row.Scan(&msg.CreatedAt); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`UPDATE conversations SET updated_at = now() WHERE id = $1`,
			msg.ConversationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
