package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "agentconductor:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr     string
	Password string
	DB       int
	// Prefix is the key prefix (default: "agentconductor:").
	Prefix string
	// TTL expires archived transcripts. Zero keeps them forever.
	TTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// RedisStore is a TranscriptStore backed by Redis. Each transcript is a JSON
// string; a sorted set scored by finish time indexes them for List.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) transcriptKey(id string) string { return s.prefix + "transcript:" + id }

func (s *RedisStore) indexKey() string { return s.prefix + "transcripts" }

func (s *RedisStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Save writes the transcript and indexes it.
func (s *RedisStore) Save(ctx context.Context, t *Transcript) error {
	if err := validate(t); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.transcriptKey(t.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(t.FinishedAt.UnixNano()), Member: t.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// Get loads a transcript by run id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Transcript, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.transcriptKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, NotFound(id)
		}
		return nil, fmt.Errorf("get transcript: %w", err)
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	return &t, nil
}

// List returns transcripts newest first. Index entries whose transcript has
// expired are pruned.
func (s *RedisStore) List(ctx context.Context, limit int) ([]*Transcript, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	if len(ids) == 0 {
		return []*Transcript{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.transcriptKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	out := make([]*Transcript, 0, len(vals))
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var t Transcript
		if err := json.Unmarshal([]byte(str), &t); err != nil {
			return nil, fmt.Errorf("unmarshal transcript %s: %w", ids[i], err)
		}
		out = append(out, &t)
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	return out, nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
