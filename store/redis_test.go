package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "test:", ttl)
	t.Cleanup(func() { _ = s.Close() })
	return mr, s
}

func TestRedisStore(t *testing.T) {
	_, s := setupMiniredis(t, 0)
	exerciseStore(t, s)
}

func TestRedisStore_KeysAndTTL(t *testing.T) {
	mr, s := setupMiniredis(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleTranscript("r1", epoch)))

	assert.True(t, mr.Exists("test:transcript:r1"))
	assert.Equal(t, time.Hour, mr.TTL("test:transcript:r1"))
	members, err := mr.ZMembers("test:transcripts")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, members)
}

func TestRedisStore_ListPrunesExpired(t *testing.T) {
	mr, s := setupMiniredis(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleTranscript("old", epoch)))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, s.Save(ctx, sampleTranscript("new", epoch.Add(time.Hour))))

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID)

	members, err := mr.ZMembers("test:transcripts")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, members)

	_, err = s.Get(ctx, "old")
	assert.Error(t, err)
}

func TestNewRedisStore(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, DefaultRedisPrefix, s.prefix)
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	mr, s := setupMiniredis(t, 0)
	require.NoError(t, mr.Set("test:transcript:bad", "{not json"))

	_, err := s.Get(context.Background(), "bad")
	assert.Error(t, err)
}
