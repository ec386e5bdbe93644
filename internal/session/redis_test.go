package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyguider/internal/models"
	"studyguider/internal/redis"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.Connect(&goredis.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStoreAppendAndHistory(t *testing.T) {
	s, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	history, err := s.History(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, s.Append(ctx, "abc",
		models.NewMessage(models.RoleUser, "What is an SOP?"),
		models.NewMessage(models.RoleAssistant, "A statement of purpose.")))

	history, err = s.History(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "What is an SOP?", history[0].Content)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.Equal(t, time.Hour, mr.TTL(redisKey("abc")))
}

func TestRedisStoreExpiresIdleSessions(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "abc", models.NewMessage(models.RoleUser, "hi")))

	mr.FastForward(2 * time.Minute)
	history, err := s.History(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRedisStoreTruncateAndDelete(t *testing.T) {
	s, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "abc",
		models.NewMessage(models.RoleUser, "1"),
		models.NewMessage(models.RoleAssistant, "2"),
		models.NewMessage(models.RoleUser, "3")))

	require.NoError(t, s.Truncate(ctx, "abc", 2))
	history, err := s.History(ctx, "abc")
	require.NoError(t, err)
	assert.Len(t, history, 2)
	require.ErrorIs(t, s.Truncate(ctx, "abc", 3), ErrInvalidLength)

	require.NoError(t, s.Delete(ctx, "abc"))
	assert.False(t, mr.Exists(redisKey("abc")))
}
