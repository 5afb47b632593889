package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stockmind/orchestrator/budget"
	"github.com/stockmind/orchestrator/catalog"
	"github.com/stockmind/orchestrator/collab"
	"github.com/stockmind/orchestrator/core"
	"github.com/stockmind/orchestrator/lifecycle"
	"github.com/stockmind/orchestrator/manager"
	"github.com/stockmind/orchestrator/progress"
	"github.com/stockmind/orchestrator/routing"
	"github.com/stockmind/orchestrator/store"
)

// Orchestrator owns one instance each of the nine components and
// implements the public Orchestration API from §6.1.
type Orchestrator struct {
	catalog    *catalog.Registry
	store      store.Store
	budget     *budget.Tracker
	router     *routing.Engine
	manager    *manager.Manager
	coordinator *collab.Coordinator
	lifecycle  *lifecycle.Tracker
	progressReg *progress.Registry

	pool   *workerPool
	logger core.Logger
}

// Config bundles the dependencies an Orchestrator is built from. Every
// field is required except Logger and MaxQueueDepth.
type Config struct {
	Catalog            *catalog.Registry
	Store              store.Store
	Budget             *budget.Tracker
	Router             *routing.Engine
	Manager            *manager.Manager
	Coordinator        *collab.Coordinator
	Lifecycle          *lifecycle.Tracker
	MaxConcurrentTasks int
	MaxQueueDepth      int
	Logger             core.Logger
}

// New wires an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestrator")
	}
	return &Orchestrator{
		catalog:     cfg.Catalog,
		store:       cfg.Store,
		budget:      cfg.Budget,
		router:      cfg.Router,
		manager:     cfg.Manager,
		coordinator: cfg.Coordinator,
		lifecycle:   cfg.Lifecycle,
		progressReg: progress.NewRegistry(),
		pool:        newWorkerPool(cfg.MaxConcurrentTasks, cfg.MaxQueueDepth),
		logger:      logger,
	}
}

type runHandle struct {
	done atomic.Bool
}

func (h *runHandle) Alive() bool { return !h.done.Load() }

// StartAnalysis spawns the run's goroutine, registers it with the
// lifecycle tracker, and returns immediately with a generated
// analysis_id.
func (o *Orchestrator) StartAnalysis(ctx context.Context, cfg AnalysisConfig) (string, error) {
	if err := o.pool.acquire(ctx); err != nil {
		return "", err
	}

	analysisID := uuid.New().String()
	run := AnalysisRun{
		AnalysisID:     analysisID,
		StockSymbol:    cfg.StockSymbol,
		Market:         cfg.Market,
		AnalysisDate:   cfg.AnalysisDate,
		SelectedAgents: cfg.SelectedAgents,
		Collaboration:  cfg.CollaborationMode,
		ResearchDepth:  cfg.ResearchDepth,
		ProviderPref:   cfg.ProviderPref,
		Status:         RunPending,
		StartedAt:      time.Now(),
		UpdatedAt:      time.Now(),
		Config:         cfg,
	}
	if err := o.persistRun(context.Background(), run); err != nil {
		o.pool.release()
		return "", err
	}

	handle := &runHandle{}
	token := o.lifecycle.Register(context.Background(), analysisID, handle)

	go o.runAnalysis(token, analysisID, cfg, handle)

	return analysisID, nil
}

func (o *Orchestrator) runAnalysis(token *RunToken, analysisID string, cfg AnalysisConfig, handle *runHandle) {
	defer o.pool.release()
	defer handle.done.Store(true)

	ctx := token.Context()
	tracker := progress.New(o.store, o.progressReg, analysisID, cfg.SelectedAgents, cfg.ResearchDepth, 1.0, depthFactor(cfg.ResearchDepth))

	run := AnalysisRun{AnalysisID: analysisID, StockSymbol: cfg.StockSymbol, Market: cfg.Market, Config: cfg, Status: RunRunning, StartedAt: time.Now()}
	_ = o.persistRun(ctx, run)

	tracker.Update(ctx, "validate", nil)
	if err := token.WaitIfPaused(); err != nil {
		o.finishCancelled(ctx, tracker, run)
		return
	}
	tracker.Update(ctx, "configure", nil)

	maxRounds := cfg.MaxDebateRounds
	if maxRounds == 0 {
		maxRounds = 3
	}

	result := o.coordinator.Execute(ctx, collab.Request{
		Description:  fmt.Sprintf("Analyze %s (%s) for investment decision purposes.", cfg.StockSymbol, cfg.Market),
		Participants: cfg.SelectedAgents,
		Mode:         cfg.CollaborationMode,
		SessionID:    analysisID,
		BudgetCap:    cfg.BudgetCap,
		MaxRounds:    maxRounds,
	})

	if token.Cancelled() {
		o.finishCancelled(ctx, tracker, run)
		return
	}

	run.Status = RunCompleted
	if !result.Success {
		run.Status = RunFailed
		run.ErrorMessage = result.ErrorMessage
	}
	run.ResultsSummary = &result
	run.UpdatedAt = time.Now()

	if run.Status == RunCompleted {
		tracker.MarkCompleted(ctx, "report_assembly", result)
	} else {
		tracker.MarkFailed(ctx, fmt.Errorf("%s", result.ErrorMessage))
	}
	_ = o.persistRun(context.Background(), run)
	o.manager.EndSession(analysisID)
}

func (o *Orchestrator) finishCancelled(ctx context.Context, tracker *progress.Tracker, run AnalysisRun) {
	run.Status = RunCancelled
	run.UpdatedAt = time.Now()
	tracker.MarkFailed(context.Background(), fmt.Errorf("cancelled"))
	_ = o.persistRun(context.Background(), run)
	o.manager.EndSession(run.AnalysisID)
}

func depthFactor(researchDepth int) float64 {
	switch {
	case researchDepth >= 4:
		return 1.5
	case researchDepth >= 2:
		return 1.2
	default:
		return 1.0
	}
}

func (o *Orchestrator) persistRun(ctx context.Context, run AnalysisRun) error {
	b, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return o.store.Set(ctx, store.AnalysisKey(run.AnalysisID), b, store.AnalysisTTL)
}

// GetProgress returns the current ProgressSnapshot for analysisID.
func (o *Orchestrator) GetProgress(ctx context.Context, analysisID string) (ProgressSnapshot, error) {
	if tracker, ok := o.progressReg.Get(analysisID); ok {
		return tracker.Snapshot(), nil
	}
	raw, err := o.store.Get(ctx, store.ProgressKey(analysisID))
	if err != nil {
		return ProgressSnapshot{}, err
	}
	var snap ProgressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return ProgressSnapshot{}, err
	}
	return snap, nil
}

// GetResult returns the final AnalysisRun for analysisID, once its
// status has reached a terminal state.
func (o *Orchestrator) GetResult(ctx context.Context, analysisID string) (AnalysisRun, error) {
	raw, err := o.store.Get(ctx, store.AnalysisKey(analysisID))
	if err != nil {
		return AnalysisRun{}, err
	}
	var run AnalysisRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return AnalysisRun{}, err
	}
	return run, nil
}

// Cancel aborts analysisID's run. Idempotent.
func (o *Orchestrator) Cancel(ctx context.Context, analysisID string) error {
	o.lifecycle.Cancel(analysisID)
	return nil
}

// Pause marks analysisID's run paused. The run checks this once, before
// its collaboration starts; a run already inside the coordinator is not
// held. Idempotent. Does not abort in-flight adapter calls.
func (o *Orchestrator) Pause(ctx context.Context, analysisID string) error {
	o.lifecycle.Pause(analysisID)
	return nil
}

// Resume clears analysisID's paused flag. Idempotent.
func (o *Orchestrator) Resume(ctx context.Context, analysisID string) error {
	o.lifecycle.Resume(analysisID)
	return nil
}

// ListLatest returns up to limit most-recently-updated runs, most
// recent first.
func (o *Orchestrator) ListLatest(ctx context.Context, limit int) ([]RunSummary, error) {
	keys, err := o.store.Keys(ctx, store.AnalysisKeyPrefix)
	if err != nil {
		return nil, err
	}

	summaries := make([]RunSummary, 0, len(keys))
	for _, key := range keys {
		raw, err := o.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var run AnalysisRun
		if err := json.Unmarshal(raw, &run); err != nil {
			continue
		}
		summaries = append(summaries, RunSummary{
			AnalysisID:  run.AnalysisID,
			StockSymbol: run.StockSymbol,
			Status:      run.Status,
			UpdatedAt:   run.UpdatedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt) })
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
