package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"meshforge.app/studio/common/id"
	"meshforge.app/studio/core/db"
	"meshforge.app/studio/internal/model"
)

type conversationStore struct {
	db *db.DB
}

// NewConversationStore creates a pgx-backed ConversationStore.
func NewConversationStore(database *db.DB) ConversationStore {
	return &conversationStore{db: database}
}

func (s *conversationStore) Create(ctx context.Context, title *string) (*model.Conversation, error) {
	row := s.db.Pool().QueryRow(ctx,
		`INSERT INTO conversations (id, title)
		 VALUES ($1, $2)
		 RETURNING id, title, created_at, updated_at`,
		id.New(), title)

	var conv model.Conversation
	if err := row.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *conversationStore) Get(ctx context.Context, convID int64) (*model.Conversation, error) {
	row := s.db.Pool().QueryRow(ctx,
		`SELECT id, title, created_at, updated_at
		 FROM conversations WHERE id = $1`,
		convID)

	var conv model.Conversation
	if err := row.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (s *conversationStore) List(ctx context.Context, limit int32) ([]model.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Pool().Query(ctx,
		`SELECT id, title, created_at, updated_at
		 FROM conversations
		 ORDER BY updated_at DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, conv)
	}
	return result, rows.Err()
}

func (s *conversationStore) Delete(ctx context.Context, convID int64) error {
	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM conversations WHERE id = $1`, convID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
