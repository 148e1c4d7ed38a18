package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultQueueKey     = "dealpulse:alerts:outbox"
	DefaultMarkerPrefix = "dealpulse:alerts:sent:"
	DefaultDedupTTL     = 45 * 24 * time.Hour
)

// Connect opens a Redis client from a redis:// URL and pings it
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}

// RedisSink pushes rendered digests onto a list consumed by the mail sender
type RedisSink struct {
	rdb      redis.UniversalClient
	queueKey string
}

func NewRedisSink(rdb redis.UniversalClient, queueKey string) *RedisSink {
	if queueKey == "" {
		queueKey = DefaultQueueKey
	}
	return &RedisSink{rdb: rdb, queueKey: queueKey}
}

func (s *RedisSink) Send(ctx context.Context, digest Digest) error {
	payload, err := json.Marshal(digest)
	if err != nil {
		return fmt.Errorf("encode digest: %w", err)
	}
	if err := s.rdb.LPush(ctx, s.queueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue digest: %w", err)
	}
	return nil
}

// RedisMarker records emitted decisions with SETNX so that separate
// processes share one dedup view. Keys expire after ttl.
type RedisMarker struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisMarker(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisMarker {
	if prefix == "" {
		prefix = DefaultMarkerPrefix
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisMarker{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (m *RedisMarker) Mark(ctx context.Context, key string) (bool, error) {
	ok, err := m.rdb.SetNX(ctx, m.prefix+key, time.Now().UTC().Format(time.RFC3339), m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return ok, nil
}
