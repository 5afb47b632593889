package store

import (
	"context"
	"errors"
	"time"

	"github.com/stockmind/orchestrator/core"
)

var errKeysUnsupported = errors.New("store: prefix scan not supported against redis, use the fallback store")

// RedisStore is the primary Store backend, a thin adapter over
// core.RedisClient restricted to RedisDBStore.
type RedisStore struct {
	client *core.RedisClient
	logger core.Logger
}

// NewRedisStore wraps an already-connected core.RedisClient (expected to
// be configured with core.RedisDBStore).
func NewRedisStore(client *core.RedisClient, logger core.Logger) *RedisStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestrator/store")
	}
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key)
	if err != nil {
		// go-redis returns redis.Nil for a missing key; core.RedisClient
		// passes that through unwrapped, so any Get error here is
		// treated as "not found" from the caller's point of view.
		return nil, ErrNotFound
	}
	return []byte(val), nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl)
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key)
}

func (s *RedisStore) Append(ctx context.Context, streamKey string, record []byte) error {
	if err := s.client.RPush(ctx, streamKey, record); err != nil {
		return err
	}
	// Bound unbounded growth of the append-only logs to the most recent
	// 100k entries; well beyond what any single process's lifetime
	// would realistically need to read back.
	return s.client.LTrim(ctx, streamKey, -100000, -1)
}

func (s *RedisStore) Range(ctx context.Context, streamKey string, limit int64) ([][]byte, error) {
	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	entries, err := s.client.LRange(ctx, streamKey, start, -1)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = []byte(e)
	}
	return out, nil
}

// Keys is not implemented against Redis directly: core.RedisClient
// intentionally does not expose KEYS/SCAN (an unbounded scan is a
// footgun against a shared Redis instance), so prefix scans are served
// from the file fallback's directory listing via FallbackStore.Keys.
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return nil, errKeysUnsupported
}
