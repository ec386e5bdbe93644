package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"studyguider/internal/models"
	"studyguider/internal/redis"
)

const redisKeyPrefix = "chat:session:"

// RedisStore keeps each session as a redis list of JSON encoded messages.
// Every access refreshes the session TTL, so idle sessions expire on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) History(ctx context.Context, id string) ([]models.Message, error) {
	key := redisKey(id)
	raw, err := s.client.RangeList(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", id, err)
	}
	msgs := make([]models.Message, 0, len(raw))
	for i, item := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode session %q message %d: %w", id, i, err)
		}
		msgs = append(msgs, msg)
	}
	if len(raw) > 0 {
		if err := s.client.Expire(ctx, key, s.ttl); err != nil {
			return nil, fmt.Errorf("refresh session %q: %w", id, err)
		}
	}
	return msgs, nil
}

func (s *RedisStore) Append(ctx context.Context, id string, msgs ...models.Message) error {
	values := make([]interface{}, 0, len(msgs))
	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		values = append(values, string(payload))
	}
	if err := s.client.AppendList(ctx, redisKey(id), s.ttl, values...); err != nil {
		return fmt.Errorf("append to session %q: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Truncate(ctx context.Context, id string, n int) error {
	key := redisKey(id)
	length, err := s.client.ListLen(ctx, key)
	if err != nil {
		return fmt.Errorf("session %q length: %w", id, err)
	}
	if n < 0 || int64(n) > length {
		return fmt.Errorf("%w: truncate to %d of %d", ErrInvalidLength, n, length)
	}
	if err := s.client.TrimList(ctx, key, int64(n)); err != nil {
		return fmt.Errorf("truncate session %q: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKey(id)); err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	return nil
}
