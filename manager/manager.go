package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stockmind/orchestrator/budget"
	"github.com/stockmind/orchestrator/catalog"
	"github.com/stockmind/orchestrator/core"
	"github.com/stockmind/orchestrator/providers"
	"github.com/stockmind/orchestrator/routing"
	"github.com/stockmind/orchestrator/telemetry"
)

const (
	maxFallbackAttempts  = 3
	simplifiedRetries    = 3
	simplifiedTemp       = 0.7
	simplifiedMaxTokens  = 1000
	simplifiedModePrefix = "[simplified mode - reduced capability due to repeated provider failures] "
)

// Manager implements the multi-model manager's execute_task algorithm.
type Manager struct {
	registry *catalog.Registry
	router   *routing.Engine
	budget   *budget.Tracker
	circuits *sessionCircuits

	adapterFor map[string]providers.Adapter
	logger     core.Logger
	telemetry  core.Telemetry
}

// New wires a Manager to its dependencies. RegisterAdapter must be called
// for each configured provider before ExecuteTask is used.
func New(registry *catalog.Registry, router *routing.Engine, budgetTracker *budget.Tracker) *Manager {
	return &Manager{
		registry:   registry,
		router:     router,
		budget:     budgetTracker,
		circuits:   newSessionCircuits(),
		adapterFor: make(map[string]providers.Adapter),
		logger:     &core.NoOpLogger{},
		telemetry:  &core.NoOpTelemetry{},
	}
}

// SetLogger configures the manager's logger, tagged "orchestrator/manager".
func (m *Manager) SetLogger(logger core.Logger) {
	if logger == nil {
		m.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		m.logger = cal.WithComponent("orchestrator/manager")
	} else {
		m.logger = logger
	}
}

// SetTelemetry configures the manager's span/metric emitter. Unset, ExecuteTask
// emits no spans (core.NoOpTelemetry) but still reports package-level
// telemetry.Counter/Histogram metrics, which work independent of a provider.
func (m *Manager) SetTelemetry(t core.Telemetry) {
	if t == nil {
		t = &core.NoOpTelemetry{}
	}
	m.telemetry = t
}

// RegisterAdapter makes adapter's models available both to the catalog
// registry (for routing) and to this manager (for execution). First
// registration of a model name wins, mirroring catalog.Registry's own
// dedup rule.
func (m *Manager) RegisterAdapter(adapter providers.Adapter) {
	m.registry.RegisterProvider(adapter)
	for name := range adapter.SupportedModels() {
		if _, exists := m.adapterFor[name]; !exists {
			m.adapterFor[name] = adapter
		}
	}
}

// EndSession releases the session's accumulated budget and circuit
// breaker state. Call once an AnalysisRun's session scope closes.
func (m *Manager) EndSession(sessionID string) {
	m.budget.ResetSession(sessionID)
	m.circuits.endSession(sessionID)
}

// CircuitStatuses reports the current circuit breaker state for every
// model that has seen a failure in sessionID.
func (m *Manager) CircuitStatuses(sessionID string) []CircuitStatus {
	return m.circuits.statuses(sessionID)
}

// ExecuteTask runs §4.6's six-step algorithm end to end for one agent
// task.
func (m *Manager) ExecuteTask(ctx context.Context, agentRole, prompt, taskType string, complexity providers.Complexity, reqCtx RequestContext) providers.TaskResult {
	sessionID := reqCtx.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	startTime := time.Now()
	ctx, span := m.telemetry.StartSpan(ctx, "manager.execute_task")
	span.SetAttribute("manager.agent_role", agentRole)
	span.SetAttribute("manager.task_type", taskType)
	span.SetAttribute("manager.no_fallback", reqCtx.NoFallback)
	defer func() {
		telemetry.Histogram("manager.execute_task.duration_ms", float64(time.Since(startTime).Milliseconds()),
			"task_type", taskType, "agent_role", agentRole)
		span.End()
	}()

	if m.budget.CheckBudget(sessionID, reqCtx.BudgetCap) == budget.BudgetExceeded {
		telemetry.Counter("manager.execute_task.total", "task_type", taskType, "outcome", "budget_exceeded")
		span.SetAttribute("manager.outcome", "budget_exceeded")
		return providers.TaskResult{
			Success:      false,
			ErrorKind:    string(core.ErrKindBudgetExceeded),
			ErrorMessage: "session budget cap exceeded",
		}
	}

	taskSpec := providers.TaskSpec{
		TaskType:          taskType,
		Complexity:        complexity,
		EstimatedTokens:   providers.EstimateTokens(prompt),
		RequiresReasoning: taskRequiresReasoning(taskType),
		RequiresChinese:   providers.ChineseCharRatio(prompt) > 0.2,
		RequiresSpeed:     complexity == providers.ComplexityLow,
	}

	available := m.registry.GetAllAvailable()
	selection := m.selectModel(ctx, agentRole, prompt, taskSpec, sessionID, reqCtx, available)

	attempts := m.buildAttemptChain(selection, reqCtx, available, sessionID)
	if len(attempts) == 0 {
		telemetry.Counter("manager.execute_task.total", "task_type", taskType, "outcome", "no_model_available")
		span.SetAttribute("manager.outcome", "no_model_available")
		return providers.TaskResult{
			Success:      false,
			ErrorKind:    string(core.ErrKindNoModelAvailable),
			ErrorMessage: "no model available after policy and circuit-breaker filtering",
		}
	}
	span.SetAttribute("manager.attempt_chain_len", len(attempts))

	opts := providers.Options{
		Temperature: reqCtx.Temperature,
		MaxTokens:   reqCtx.MaxTokens,
		Stream:      reqCtx.Stream,
		OnToken:     reqCtx.OnToken,
	}

	result, ok := m.runFallbackChain(ctx, attempts, prompt, taskSpec, opts, taskType, sessionID)
	if ok {
		m.recordUsage(ctx, result, sessionID, taskType)
		telemetry.Counter("manager.execute_task.total", "task_type", taskType, "outcome", "success")
		span.SetAttribute("manager.outcome", "success")
		if result.ModelUsed != nil {
			span.SetAttribute("manager.model_used", result.ModelUsed.Name)
		}
		return result
	}

	// NoFallback means a single attempt end to end: the manager's own
	// simplified-mode retry (step 6) is itself an intra-task fallback
	// across models, so it's skipped too.
	if !reqCtx.NoFallback {
		simplified, ok := m.simplifiedFallback(ctx, agentRole, prompt, taskType, available, sessionID)
		if ok {
			m.recordUsage(ctx, simplified, sessionID, taskType)
			telemetry.Counter("manager.execute_task.total", "task_type", taskType, "outcome", "simplified_mode")
			span.SetAttribute("manager.outcome", "simplified_mode")
			return simplified
		}
	}

	telemetry.Counter("manager.execute_task.total", "task_type", taskType, "outcome", "exhausted")
	span.SetAttribute("manager.outcome", "exhausted")
	span.RecordError(fmt.Errorf("%s", result.ErrorMessage))
	return userFriendly(result)
}

func (m *Manager) selectModel(ctx context.Context, agentRole, prompt string, taskSpec providers.TaskSpec, sessionID string, reqCtx RequestContext, available map[string]catalog.ModelSpec) routing.ModelSelection {
	if reqCtx.ModelOverride != "" {
		name := catalog.NormalizeAlias(reqCtx.ModelOverride)
		if spec, ok := available[name]; ok {
			return routing.ModelSelection{
				Model:       spec,
				Confidence:  1.0,
				Reasoning:   "explicit model_override",
				StrategyTag: "override",
				SelectionID: uuid.New().String(),
			}
		}
	}
	return m.router.RouteTask(ctx, routing.RouteRequest{
		TaskDescription:  prompt,
		AgentRole:        agentRole,
		TaskSpec:         taskSpec,
		AvailableModels:  available,
		SessionID:        sessionID,
		RuntimeOverrides: reqCtx.RuntimeOverrides,
		AgentBinding:     reqCtx.AgentBinding,
		TaskBinding:      reqCtx.TaskBinding,
	})
}

// buildAttemptChain assembles attempts = [primary] ++
// alternative_models_from_binding_or_router, deduped and capped at 3,
// per §4.6 step 5, skipping any model whose circuit is tripped for this
// session. reqCtx.NoFallback short-circuits this to just [primary].
func (m *Manager) buildAttemptChain(selection routing.ModelSelection, reqCtx RequestContext, available map[string]catalog.ModelSpec, sessionID string) []string {
	seen := make(map[string]bool)
	var attempts []string

	add := func(name string) {
		if name == "" || name == routing.NoModelSentinel || seen[name] {
			return
		}
		if _, ok := available[name]; !ok {
			return
		}
		if m.circuits.isTripped(sessionID, name) {
			return
		}
		seen[name] = true
		attempts = append(attempts, name)
	}

	add(selection.Model.Name)
	if reqCtx.NoFallback {
		return attempts
	}
	for _, alt := range selection.Alternatives {
		if len(attempts) >= maxFallbackAttempts {
			break
		}
		add(alt)
	}
	if reqCtx.AgentBinding != nil {
		for _, alt := range reqCtx.AgentBinding.FallbackChain {
			if len(attempts) >= maxFallbackAttempts {
				break
			}
			add(catalog.NormalizeAlias(alt))
		}
	}
	for _, alt := range reqCtx.FallbackChain {
		if len(attempts) >= maxFallbackAttempts {
			break
		}
		add(catalog.NormalizeAlias(alt))
	}

	if len(attempts) > maxFallbackAttempts {
		attempts = attempts[:maxFallbackAttempts]
	}
	return attempts
}

// runFallbackChain executes attempts in order with exponential backoff
// between them, per §4.6 step 5.
func (m *Manager) runFallbackChain(ctx context.Context, attempts []string, prompt string, taskSpec providers.TaskSpec, opts providers.Options, taskType, sessionID string) (providers.TaskResult, bool) {
	var last providers.TaskResult
	for i, model := range attempts {
		if i > 0 {
			if err := sleepBackoff(ctx, i); err != nil {
				last = providers.TaskResult{Success: false, ErrorKind: string(core.ErrKindCancelled), ErrorMessage: "cancelled during fallback backoff"}
				return last, false
			}
		}

		adapter, ok := m.adapterFor[model]
		if !ok {
			continue
		}
		start := time.Now()
		result, err := adapter.ExecuteTask(ctx, model, prompt, taskSpec, opts)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			result = providers.TaskResult{Success: false, ErrorKind: string(core.ErrKindInternalError), ErrorMessage: err.Error(), ExecutionTimeMs: elapsed}
		}

		m.router.UpdatePerformance(model, taskType, result.Success, elapsed)

		attemptStatus := "failed"
		if result.Success {
			attemptStatus = "success"
		}
		telemetry.Counter("manager.fallback_chain.attempt",
			"task_type", taskType, "model", model, "status", attemptStatus, "attempt", fmt.Sprintf("%d", i+1))

		if result.Success {
			m.circuits.recordSuccess(sessionID, model)
			return result, true
		}
		m.circuits.recordFailure(sessionID, model)
		last = result
	}
	return last, false
}

// simplifiedFallback is the last-resort path from §4.6: a short
// candidate list, a simplified role-specific prompt, up to 3 attempts
// with the same exponential backoff.
func (m *Manager) simplifiedFallback(ctx context.Context, agentRole, originalPrompt, taskType string, available map[string]catalog.ModelSpec, sessionID string) (providers.TaskResult, bool) {
	candidates := m.simplifiedCandidates(available, sessionID)
	if len(candidates) == 0 {
		return providers.TaskResult{}, false
	}

	prompt := simplifiedPromptFor(agentRole, originalPrompt)
	taskSpec := providers.TaskSpec{
		TaskType:        taskType,
		Complexity:      providers.ComplexityLow,
		EstimatedTokens: providers.EstimateTokens(prompt),
	}
	opts := providers.Options{Temperature: simplifiedTemp, MaxTokens: simplifiedMaxTokens}

	attempts := candidates
	if len(attempts) > simplifiedRetries {
		attempts = attempts[:simplifiedRetries]
	}

	for i, model := range attempts {
		if i > 0 {
			if err := sleepBackoff(ctx, i); err != nil {
				return providers.TaskResult{}, false
			}
		}
		adapter, ok := m.adapterFor[model]
		if !ok {
			continue
		}
		result, err := adapter.ExecuteTask(ctx, model, prompt, taskSpec, opts)
		if err != nil || !result.Success {
			continue
		}
		result.Text = simplifiedModePrefix + result.Text
		return result, true
	}
	return providers.TaskResult{}, false
}

func (m *Manager) simplifiedCandidates(available map[string]catalog.ModelSpec, sessionID string) []string {
	var out []string
	for name := range available {
		if m.circuits.isTripped(sessionID, name) {
			continue
		}
		if _, ok := m.adapterFor[name]; ok {
			out = append(out, name)
		}
		if len(out) >= simplifiedRetries {
			break
		}
	}
	return out
}

func (m *Manager) recordUsage(ctx context.Context, result providers.TaskResult, sessionID, analysisType string) {
	if !result.Success || result.ModelUsed == nil {
		return
	}
	m.budget.Record(ctx, budget.UsageRecord{
		Timestamp:     time.Now(),
		Provider:      string(result.ModelUsed.Provider),
		ModelName:     result.ModelUsed.Name,
		InputTokens:   result.TokenUsage.PromptTokens,
		OutputTokens:  result.TokenUsage.CompletionTokens,
		TotalTokens:   result.TokenUsage.TotalTokens,
		EstimatedCost: result.ActualCost,
		SessionID:     sessionID,
		AnalysisType:  analysisType,
	})
}

// sleepBackoff implements the 1s*2^(i-1) exponential backoff, cancellable
// via ctx.
func sleepBackoff(ctx context.Context, attemptIndex int) error {
	delay := time.Duration(1<<uint(attemptIndex-1)) * time.Second
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func taskRequiresReasoning(taskType string) bool {
	switch taskType {
	case "decision_making", "risk_assessment", "policy_analysis", "fundamental_analysis":
		return true
	default:
		return false
	}
}

// simplifiedPromptFor builds the 1-3 sentence role-specific template used
// by the simplified fallback path.
func simplifiedPromptFor(agentRole, originalPrompt string) string {
	summary := originalPrompt
	if len(summary) > 240 {
		summary = summary[:240] + "..."
	}
	role := strings.ReplaceAll(agentRole, "_", " ")
	return fmt.Sprintf("As a %s, give a brief, direct assessment of the following in 2-3 sentences: %s", role, summary)
}

// userFriendly augments the last failure with a user-facing message
// while preserving its error_kind for programmatic handling.
func userFriendly(result providers.TaskResult) providers.TaskResult {
	if result.ErrorMessage == "" {
		result.ErrorMessage = "unable to complete this task after exhausting all fallback options"
	} else {
		result.ErrorMessage = result.ErrorMessage + " (all fallback options exhausted)"
	}
	return result
}
