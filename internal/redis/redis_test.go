package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyguider/internal/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect(&goredis.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestListOperations(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.AppendList(ctx, "k", time.Minute, "a", "b", "c"))
	values, err := client.RangeList(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, values)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, client.TrimList(ctx, "k", 1))
	n, err := client.ListLen(ctx, "k")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, client.TrimList(ctx, "k", 0))
	assert.False(t, mr.Exists("k"))
}

func TestNewRedisClientUsesConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Host = mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg.Redis.Port = port

	client, err := NewRedisClient(cfg)
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestNilClientReportsError(t *testing.T) {
	var c *Client
	_, err := c.RangeList(context.Background(), "k")
	require.Error(t, err)
	assert.NoError(t, c.Close())
}

func TestEmptyAppendRefreshesTTL(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.AppendList(ctx, "k", time.Minute, "a"))
	mr.FastForward(50 * time.Second)
	require.NoError(t, client.AppendList(ctx, "k", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, client.Expire(ctx, "k", 0))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, client.Del(ctx, "k"))
	assert.False(t, mr.Exists("k"))
	assert.NoError(t, client.Del(ctx))
}
