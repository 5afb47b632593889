// Package store implements the persistence layer (component C4): a
// pluggable key-value store with TTL and append-only log streams, backed
// primarily by Redis with a local-file fallback.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key has no value (expired,
// never written, or deleted).
var ErrNotFound = errors.New("store: key not found")

// Store is the pluggable key-value contract every persistence backend
// implements: get/set/del with TTL, plus append for the two
// append-only log streams (usage.log, routing_decisions).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Append(ctx context.Context, streamKey string, record []byte) error
	// Range returns up to limit most-recent entries from streamKey, in
	// append order. limit<=0 means unbounded.
	Range(ctx context.Context, streamKey string, limit int64) ([][]byte, error)
	// Keys returns every key currently present under prefix, used by
	// lifecycle's latest_analysis_id scan over "progress:*".
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Key namespace helpers, matching the persisted-key layout.
const (
	UsageLogStream          = "usage.log"
	RoutingDecisionsStream  = "routing_decisions"
	ProgressKeyPrefix       = "progress:"
	SessionKeyPrefix        = "session:"
	AnalysisKeyPrefix       = "analysis:"
	ModelPerfKeyPrefix      = "model_perf:"
)

// ProgressKey builds the progress:{analysis_id} key.
func ProgressKey(analysisID string) string { return ProgressKeyPrefix + analysisID }

// SessionKey builds the session:{session_token} key.
func SessionKey(token string) string { return SessionKeyPrefix + token }

// AnalysisKey builds the analysis:{analysis_id} key.
func AnalysisKey(analysisID string) string { return AnalysisKeyPrefix + analysisID }

// ModelPerfKey builds the model_perf:{model,task_type} key.
func ModelPerfKey(model, taskType string) string {
	return ModelPerfKeyPrefix + model + "," + taskType
}

// Default TTLs per §3/§6.2.
const (
	ProgressTTL = 1 * time.Hour
	SessionTTL  = 24 * time.Hour
	AnalysisTTL = 7 * 24 * time.Hour
)
