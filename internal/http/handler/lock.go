package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConversationLock serializes streamed actions per conversation with a redis
// SET NX lease. The orchestrator assumes a single writer per conversation, so
// a second concurrent request is rejected rather than queued. With no redis
// client configured the lock degrades to a no-op.
type ConversationLock struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewConversationLock(redisClient *redis.Client, ttl time.Duration) *ConversationLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ConversationLock{redis: redisClient, ttl: ttl}
}

// Acquire takes the lock for a conversation. It returns a release func and
// whether the lock was obtained; acquired == false means another request
// holds it.
func (l *ConversationLock) Acquire(ctx context.Context, conversationID int64) (release func(), acquired bool, err error) {
	if l.redis == nil {
		return func() {}, true, nil
	}

	key := fmt.Sprintf("studio:conversation-lock:%d", conversationID)
	ok, err := l.redis.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire conversation lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		// Release must survive request-context cancellation.
		_ = l.redis.Del(context.WithoutCancel(ctx), key).Err()
	}, true, nil
}
