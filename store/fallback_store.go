package store

import (
	"context"
	"time"

	"github.com/stockmind/orchestrator/core"
)

// FallbackStore composes a primary backend (normally RedisStore) with a
// local FileStore: writers always attempt primary first and fall back to
// local files transparently on failure, logging a warning; reads check
// primary then fallback.
type FallbackStore struct {
	primary  Store
	fallback *FileStore
	logger   core.Logger
}

// NewFallbackStore wires primary and fallback together.
func NewFallbackStore(primary Store, fallback *FileStore, logger core.Logger) *FallbackStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestrator/store")
	}
	return &FallbackStore{primary: primary, fallback: fallback, logger: logger}
}

func (s *FallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	if val, err := s.primary.Get(ctx, key); err == nil {
		return val, nil
	}
	return s.fallback.Get(ctx, key)
}

func (s *FallbackStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.primary.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("Primary store write failed, falling back to local file", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return s.fallback.Set(ctx, key, value, ttl)
	}
	// Best-effort mirror to the fallback so a later primary outage still
	// has a recent copy to read from; failures here are not fatal.
	_ = s.fallback.Set(ctx, key, value, ttl)
	return nil
}

func (s *FallbackStore) Del(ctx context.Context, key string) error {
	primaryErr := s.primary.Del(ctx, key)
	fallbackErr := s.fallback.Del(ctx, key)
	if primaryErr != nil {
		return primaryErr
	}
	return fallbackErr
}

func (s *FallbackStore) Append(ctx context.Context, streamKey string, record []byte) error {
	if err := s.primary.Append(ctx, streamKey, record); err != nil {
		s.logger.Warn("Primary store append failed, falling back to local file", map[string]interface{}{
			"stream": streamKey,
			"error":  err.Error(),
		})
		return s.fallback.Append(ctx, streamKey, record)
	}
	_ = s.fallback.Append(ctx, streamKey, record)
	return nil
}

func (s *FallbackStore) Range(ctx context.Context, streamKey string, limit int64) ([][]byte, error) {
	if out, err := s.primary.Range(ctx, streamKey, limit); err == nil && len(out) > 0 {
		return out, nil
	}
	return s.fallback.Range(ctx, streamKey, limit)
}

func (s *FallbackStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if out, err := s.primary.Keys(ctx, prefix); err == nil {
		return out, nil
	}
	return s.fallback.Keys(ctx, prefix)
}

// StartBackgroundGC runs the fallback file store's garbage collector on
// interval until ctx is done.
func (s *FallbackStore) StartBackgroundGC(ctx context.Context, interval time.Duration) {
	s.fallback.StartGC(ctx, interval)
}
