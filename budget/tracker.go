// Package budget implements the usage and budget tracker (component C3):
// accounting for token usage and enforcing per-session budget caps.
package budget

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stockmind/orchestrator/core"
	"github.com/stockmind/orchestrator/resilience"
	"github.com/stockmind/orchestrator/store"
)

// UsageRecord is one entry in the append-only usage log.
type UsageRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	Provider      string    `json:"provider"`
	ModelName     string    `json:"model_name"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	TotalTokens   int       `json:"total_tokens"`
	EstimatedCost float64   `json:"estimated_cost"`
	SessionID     string    `json:"session_id"`
	AnalysisType  string    `json:"analysis_type"`
}

// BudgetStatus is the result of a budget check.
type BudgetStatus string

const (
	BudgetOK       BudgetStatus = "ok"
	BudgetExceeded BudgetStatus = "exceeded"
)

// Tracker accounts for usage and enforces budget caps. session_cost is
// kept as an in-process running total so it never has to re-scan
// usage.log; the accumulator is updated in lockstep with every append so
// it always equals sum(UsageRecord.estimated_cost) for that session, the
// invariant spec'd for SessionMetrics.total_cost.
type Tracker struct {
	store  store.Store
	retry  *resilience.RetryExecutor
	logger core.Logger

	mu    sync.RWMutex
	costs map[string]float64 // session_id -> running total cost
}

// NewTracker creates a Tracker backed by st for the append-only
// usage.log.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{
		store:  st,
		retry:  resilience.NewRetryExecutor(&resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, MaxDelay: 500 * time.Millisecond, BackoffFactor: 2.0}),
		logger: &core.NoOpLogger{},
		costs:  make(map[string]float64),
	}
}

// SetLogger configures the tracker's logger, tagged "orchestrator/budget".
func (t *Tracker) SetLogger(logger core.Logger) {
	if logger == nil {
		t.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		t.logger = cal.WithComponent("orchestrator/budget")
	} else {
		t.logger = logger
	}
	t.retry.SetLogger(t.logger)
}

// Record appends rec to usage.log and updates the session's running
// cost. It never blocks the calling path beyond a bounded retry: a
// persistence failure after retries is logged and swallowed, since the
// in-memory accumulator has already been updated and budget enforcement
// must not stall on a degraded store.
func (t *Tracker) Record(ctx context.Context, rec UsageRecord) {
	t.mu.Lock()
	t.costs[rec.SessionID] += rec.EstimatedCost
	t.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		t.logger.Error("Failed to marshal usage record", map[string]interface{}{"error": err.Error()})
		return
	}

	err = t.retry.Execute(ctx, "budget.record", func() error {
		return t.store.Append(ctx, store.UsageLogStream, data)
	})
	if err != nil {
		t.logger.Warn("Usage record append exhausted retries", map[string]interface{}{
			"session_id": rec.SessionID,
			"error":      err.Error(),
		})
	}
}

// SessionCost returns the running total cost for a session since it
// first recorded usage.
func (t *Tracker) SessionCost(sessionID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.costs[sessionID]
}

// CheckBudget reports whether sessionID's running cost has exceeded cap.
// A non-positive cap means no limit.
func (t *Tracker) CheckBudget(sessionID string, cap float64) BudgetStatus {
	if cap <= 0 {
		return BudgetOK
	}
	if t.SessionCost(sessionID) > cap {
		return BudgetExceeded
	}
	return BudgetOK
}

// ResetSession clears a session's accumulated cost, used when an
// AnalysisRun completes and its session scope closes.
func (t *Tracker) ResetSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.costs, sessionID)
}
