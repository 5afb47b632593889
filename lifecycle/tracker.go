package lifecycle

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stockmind/orchestrator/core"
	"github.com/stockmind/orchestrator/progress"
	"github.com/stockmind/orchestrator/store"
)

// RunStatus is the externally observable status of one analysis_id.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
	StatusNotFound  RunStatus = "not_found"
)

// WorkerHandle is the liveness contract a spawned worker registers under
// its analysis_id. Alive reports whether the worker goroutine is still
// executing.
type WorkerHandle interface {
	Alive() bool
}

type runEntry struct {
	handle    WorkerHandle
	token     *RunToken
	cancelled bool
}

// Tracker registers every spawned worker for an analysis_id, answers
// liveness/status queries, and exposes pause/resume/cancel. All state
// mutations are guarded by a single mutex, per §4.9's concurrency
// contract.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*runEntry
	store   store.Store
	logger  core.Logger
}

// New creates a lifecycle tracker backed by st for crash-recovery status
// lookups.
func New(st store.Store) *Tracker {
	return &Tracker{entries: make(map[string]*runEntry), store: st, logger: &core.NoOpLogger{}}
}

// SetLogger configures the tracker's logger, tagged "orchestrator/lifecycle".
func (t *Tracker) SetLogger(logger core.Logger) {
	if logger == nil {
		t.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		t.logger = cal.WithComponent("orchestrator/lifecycle")
	} else {
		t.logger = logger
	}
}

// Register records handle as the live worker for analysisID and returns
// its cancellation token. parent is the context the run's token chains
// from (usually context.Background() or a request-scoped context).
func (t *Tracker) Register(parent context.Context, analysisID string, handle WorkerHandle) *RunToken {
	t.mu.Lock()
	defer t.mu.Unlock()
	token := newRunToken(parent)
	t.entries[analysisID] = &runEntry{handle: handle, token: token}
	return token
}

// Unregister removes analysisID's entry.
func (t *Tracker) Unregister(analysisID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, analysisID)
}

// IsAlive reports whether analysisID's worker is still running. A dead
// handle is auto-unregistered.
func (t *Tracker) IsAlive(analysisID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[analysisID]
	if !ok {
		return false
	}
	if entry.handle != nil && !entry.handle.Alive() {
		delete(t.entries, analysisID)
		return false
	}
	return true
}

// Status reports analysisID's externally observable status, consulting
// the persisted progress snapshot when the in-process handle is gone.
func (t *Tracker) Status(ctx context.Context, analysisID string) RunStatus {
	t.mu.Lock()
	entry, ok := t.entries[analysisID]
	if ok && entry.cancelled {
		t.mu.Unlock()
		return StatusCancelled
	}
	alive := ok && (entry.handle == nil || entry.handle.Alive())
	if ok && !alive {
		delete(t.entries, analysisID)
	}
	t.mu.Unlock()

	if alive {
		return StatusRunning
	}

	if t.store == nil {
		return StatusNotFound
	}
	raw, err := t.store.Get(ctx, store.ProgressKey(analysisID))
	if err != nil {
		return StatusNotFound
	}
	var snap progress.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return StatusFailed
	}
	switch snap.Status {
	case progress.StatusCompleted:
		return StatusCompleted
	case progress.StatusFailed:
		return StatusFailed
	default:
		// A progress record exists but never reached a terminal state and
		// the worker is gone: abnormal termination.
		return StatusFailed
	}
}

// Pause marks analysisID's run token paused. No-op if not registered.
func (t *Tracker) Pause(analysisID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.entries[analysisID]; ok {
		entry.token.Pause()
	}
}

// Resume clears analysisID's paused flag. No-op if not registered.
func (t *Tracker) Resume(analysisID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.entries[analysisID]; ok {
		entry.token.Resume()
	}
}

// Cancel aborts analysisID's run. Idempotent.
func (t *Tracker) Cancel(analysisID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.entries[analysisID]; ok {
		entry.cancelled = true
		entry.token.Cancel()
	}
}

// LatestAnalysisID scans progress:* and returns the most recently
// updated analysis_id, used by UIs to recover a session after a reload.
// Returns "" if none exist.
func (t *Tracker) LatestAnalysisID(ctx context.Context) string {
	if t.store == nil {
		return ""
	}
	keys, err := t.store.Keys(ctx, store.ProgressKeyPrefix)
	if err != nil || len(keys) == 0 {
		return ""
	}

	var latestID string
	var latestTime time.Time
	for _, key := range keys {
		raw, err := t.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var snap progress.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			continue
		}
		if snap.UpdatedAt.After(latestTime) {
			latestTime = snap.UpdatedAt
			latestID = snap.AnalysisID
		}
	}
	return latestID
}
