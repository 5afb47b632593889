package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/stockmind/orchestrator/core"
)

// fileEnvelope wraps a stored value with the metadata needed to apply
// TTL and age-based garbage collection without relying on the
// filesystem's own mtime semantics.
type fileEnvelope struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// FileStore is the fallback Store backend: one JSON file per key under a
// data directory, surviving restarts even without a reachable primary
// store. Each append-only stream is one file holding a JSON array.
type FileStore struct {
	dataDir string
	logger  core.Logger
	mu      sync.Mutex // serializes append-file read-modify-write
}

// NewFileStore creates a FileStore rooted at dataDir, creating the
// directory if needed.
func NewFileStore(dataDir string, logger core.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestrator/store")
	}
	return &FileStore{dataDir: dataDir, logger: logger}, nil
}

// fileNameFor maps a key to its on-disk file name: ":" becomes "_", per
// §6.2.
func fileNameFor(key string) string {
	return strings.ReplaceAll(key, ":", "_") + ".json"
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dataDir, fileNameFor(key))
}

func (f *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return nil, ErrNotFound
	}
	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrNotFound
	}
	if !env.ExpiresAt.IsZero() && time.Now().After(env.ExpiresAt) {
		_ = os.Remove(f.path(key))
		return nil, ErrNotFound
	}
	return env.Value, nil
}

func (f *FileStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	env := fileEnvelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	// Write-then-rename keeps the atomic-snapshot guarantee: a reader
	// never observes a partially written file.
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path(key))
}

func (f *FileStore) Del(ctx context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FileStore) Append(ctx context.Context, streamKey string, record []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(streamKey)
	var records [][]byte
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &records)
	}
	records = append(records, record)

	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (f *FileStore) Range(ctx context.Context, streamKey string, limit int64) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(streamKey))
	if err != nil {
		return nil, nil
	}
	var records [][]byte
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil
	}
	if limit > 0 && int64(len(records)) > limit {
		records = records[int64(len(records))-limit:]
	}
	return records, nil
}

func (f *FileStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.dataDir)
	if err != nil {
		return nil, err
	}
	fileName := strings.ReplaceAll(prefix, ":", "_")
	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), fileName) {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".json")
		key = strings.Replace(key, "_", ":", 1)
		keys = append(keys, key)
	}
	return keys, nil
}

// ttlForPrefix returns the fallback GC age for a key prefix, per §6.2's
// record-expiry table: 24h for session:*, 1h for progress:*, 7d for
// analysis:*. Keys outside those prefixes (append-only logs, model_perf)
// are never garbage collected by age.
func ttlForPrefix(key string) (time.Duration, bool) {
	switch {
	case strings.HasPrefix(key, SessionKeyPrefix):
		return SessionTTL, true
	case strings.HasPrefix(key, ProgressKeyPrefix):
		return ProgressTTL, true
	case strings.HasPrefix(key, AnalysisKeyPrefix):
		return AnalysisTTL, true
	default:
		return 0, false
	}
}

// RunGC removes fallback files older than their key prefix's TTL. Files
// written with an explicit ExpiresAt are already self-expiring via Get;
// RunGC additionally catches files whose mtime-based age exceeds the
// prefix policy, as a backstop for entries written without a TTL.
func (f *FileStore) RunGC() {
	entries, err := os.ReadDir(f.dataDir)
	if err != nil {
		return
	}
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		key := strings.Replace(strings.TrimSuffix(entry.Name(), ".json"), "_", ":", 1)
		ttl, ok := ttlForPrefix(key)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > ttl {
			path := filepath.Join(f.dataDir, entry.Name())
			if err := os.Remove(path); err != nil {
				f.logger.Warn("Fallback store GC failed to remove expired file", map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				})
			}
		}
	}
}

// StartGC runs RunGC on interval until ctx is done, grounded on the
// teacher's background cleanup goroutine idiom
// (ui/session_redis.go's startCleanupRoutine).
func (f *FileStore) StartGC(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f.RunGC()
			case <-ctx.Done():
				return
			}
		}
	}()
}
