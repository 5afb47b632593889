package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stockmind/orchestrator/core"
	"github.com/stockmind/orchestrator/store"
)

const streamWriteInterval = 500 * time.Millisecond

// Status is a ProgressSnapshot's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Snapshot is the persisted progress record for one analysis_id.
type Snapshot struct {
	AnalysisID      string          `json:"analysis_id"`
	Status          Status          `json:"status"`
	CurrentStep     int             `json:"current_step"`
	TotalSteps      int             `json:"total_steps"`
	ProgressPercent float64         `json:"progress_percent"`
	Message         string          `json:"message"`
	ElapsedSec      float64         `json:"elapsed_sec"`
	RemainingSec    float64         `json:"remaining_sec"`
	RawResults      json.RawMessage `json:"raw_results,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Tracker owns one analysis run's progress state and publishes it to the
// store.
type Tracker struct {
	mu sync.Mutex

	analysisID string
	stages     []Stage
	store      store.Store
	registry   *Registry
	logger     core.Logger

	currentStep    int
	status         Status
	message        string
	errorMessage   string
	rawResults     json.RawMessage
	startedAt      time.Time
	estimatedTotal time.Duration
	terminal       bool
	lastStreamAt   time.Time
}

// New creates a tracker for one analysis run. modelSpeedFactor and
// depthFactor feed the estimated-total-duration heuristic from §4.8.
func New(st store.Store, registry *Registry, analysisID string, selectedAgents []string, researchDepth int, modelSpeedFactor, depthFactor float64) *Tracker {
	stages := BuildStages(selectedAgents, researchDepth)
	t := &Tracker{
		analysisID:     analysisID,
		stages:         stages,
		store:          st,
		registry:       registry,
		logger:         &core.NoOpLogger{},
		status:         StatusRunning,
		startedAt:      time.Now(),
		estimatedTotal: estimateTotalDuration(selectedAgents, researchDepth, modelSpeedFactor, depthFactor),
	}
	if registry != nil {
		registry.Put(analysisID, t)
	}
	return t
}

// SetLogger configures the tracker's logger, tagged "orchestrator/progress".
func (t *Tracker) SetLogger(logger core.Logger) {
	if logger == nil {
		t.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		t.logger = cal.WithComponent("orchestrator/progress")
	} else {
		t.logger = logger
	}
}

// Update advances the tracker's state from a progress message. step, if
// non-nil, is used directly; otherwise the step is detected from
// message keywords. The step never regresses. Streaming messages
// (prefixed "[stream]") are write-throttled to one store write per
// 500ms unless the call is terminal; non-streaming messages always
// write immediately. Calls after a terminal state are silently ignored.
func (t *Tracker) Update(ctx context.Context, message string, step *int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminal {
		return
	}

	detected := t.currentStep
	if step != nil {
		detected = *step
	} else if s, ok := detectStep(t.stages, message); ok {
		detected = s
	}
	if detected > t.currentStep {
		t.currentStep = detected
	}
	t.message = message

	streaming := isStreamingMessage(message)
	now := time.Now()
	if streaming && now.Sub(t.lastStreamAt) < streamWriteInterval {
		return
	}
	t.lastStreamAt = now
	t.persist(ctx)
}

// MarkCompleted sets the terminal completed state, stores rawResults if
// provided, and de-registers the tracker from further streaming
// updates.
func (t *Tracker) MarkCompleted(ctx context.Context, message string, rawResults interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal {
		return
	}
	t.status = StatusCompleted
	t.currentStep = len(t.stages) - 1
	t.message = message
	if rawResults != nil {
		if b, err := json.Marshal(rawResults); err == nil {
			t.rawResults = b
		} else {
			t.logger.Warn("progress: failed to serialize raw_results", map[string]interface{}{"analysis_id": t.analysisID, "error": err.Error()})
		}
	}
	t.terminal = true
	t.persist(ctx)
	if t.registry != nil {
		t.registry.Remove(t.analysisID)
	}
}

// MarkFailed sets the terminal failed state.
func (t *Tracker) MarkFailed(ctx context.Context, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal {
		return
	}
	t.status = StatusFailed
	if err != nil {
		t.errorMessage = err.Error()
	}
	t.terminal = true
	t.persist(ctx)
	if t.registry != nil {
		t.registry.Remove(t.analysisID)
	}
}

// Snapshot returns the tracker's current state without touching the
// store.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	elapsed := time.Since(t.startedAt)
	percent := t.progressPercentLocked()

	remaining := t.estimatedTotal - elapsed
	if remaining < 0 {
		remaining = 0
	}
	if remaining == 0 && percent > 0 && percent < 100 {
		recomputed := time.Duration(float64(elapsed) / (percent / 100.0))
		if recomputed > elapsed {
			remaining = recomputed - elapsed
		}
	}
	if t.status == StatusCompleted {
		percent = 100
		remaining = 0
	}

	return Snapshot{
		AnalysisID:      t.analysisID,
		Status:          t.status,
		CurrentStep:     t.currentStep,
		TotalSteps:      len(t.stages),
		ProgressPercent: percent,
		Message:         t.message,
		ElapsedSec:      elapsed.Seconds(),
		RemainingSec:    remaining.Seconds(),
		RawResults:      t.rawResults,
		ErrorMessage:    t.errorMessage,
		UpdatedAt:       time.Now(),
	}
}

func (t *Tracker) progressPercentLocked() float64 {
	if len(t.stages) == 0 {
		return 0
	}
	var covered, total float64
	for i, s := range t.stages {
		total += s.Weight
		if i <= t.currentStep {
			covered += s.Weight
		}
	}
	if total == 0 {
		return 0
	}
	percent := covered / total * 100
	if t.currentStep >= len(t.stages)-1 {
		percent = 100
	}
	return percent
}

// persist serializes the current snapshot and writes it to the store
// under progress:{analysis_id}. Must be called with t.mu held.
func (t *Tracker) persist(ctx context.Context) {
	if t.store == nil {
		return
	}
	snap := t.snapshotLocked()
	b, err := json.Marshal(snap)
	if err != nil {
		t.logger.Warn("progress: failed to serialize snapshot", map[string]interface{}{"analysis_id": t.analysisID, "error": err.Error()})
		return
	}
	if err := t.store.Set(ctx, store.ProgressKey(t.analysisID), b, store.ProgressTTL); err != nil {
		t.logger.Warn("progress: failed to persist snapshot", map[string]interface{}{"analysis_id": t.analysisID, "error": err.Error()})
	}
}

func isStreamingMessage(message string) bool {
	return len(message) >= len("[stream]") && message[:len("[stream]")] == "[stream]"
}

// estimateTotalDuration implements §4.8's heuristic:
// base_prep + |analysts| * per_analyst_time(depth) * model_speed_factor * depth_factor.
func estimateTotalDuration(selectedAgents []string, researchDepth int, modelSpeedFactor, depthFactor float64) time.Duration {
	const basePrep = 5 * time.Second
	perAnalyst := perAnalystTime(researchDepth)
	if modelSpeedFactor <= 0 {
		modelSpeedFactor = 1.0
	}
	if depthFactor <= 0 {
		depthFactor = 1.0
	}
	total := basePrep + time.Duration(float64(len(selectedAgents))*float64(perAnalyst)*modelSpeedFactor*depthFactor)
	return total
}

func perAnalystTime(researchDepth int) time.Duration {
	switch {
	case researchDepth >= 3:
		return 25 * time.Second
	case researchDepth >= 2:
		return 18 * time.Second
	default:
		return 12 * time.Second
	}
}
