// internal/pkg/session/redis_store.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backoffice-service/internal/domain/conversation"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "conv:"

// RedisStore keeps conversations as JSON records in Redis so that every
// instance of a multi-worker deployment sees the same dialogue state. Expiry
// is delegated to Redis key TTLs, computed from the record's CreatedAt so the
// lifetime matches the in-memory reaper's creation-based rule.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation from redis: %w", err)
	}

	var conv conversation.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}

	return &conv, nil
}

func (s *RedisStore) Set(ctx context.Context, conv *conversation.Conversation) error {
	stored := *conv
	stored.LastTouchedAt = time.Now()

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	ttl := s.ttl - time.Since(stored.CreatedAt)
	if ttl <= 0 {
		// Already past its lifetime; don't resurrect it.
		return s.Delete(ctx, conv.ID)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+conv.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store conversation in redis: %w", err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation from redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Active(ctx context.Context) ([]string, error) {
	var ids []string

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(redisKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan conversations: %w", err)
	}

	return ids, nil
}
