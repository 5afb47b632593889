package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stockmind/orchestrator/catalog"
	"github.com/stockmind/orchestrator/core"
	"github.com/stockmind/orchestrator/providers"
	"github.com/stockmind/orchestrator/store"
)

// scoringWeights are the default weights for traditional weighted
// scoring, per §4.5 step 5.
const (
	weightQuality     = 0.6
	weightPerformance = 0.3
	weightCost        = 0.1
)

// diversityThreshold is the static floor used in the dynamic threshold
// formula max(diversityThreshold, 1/|available| + 0.15).
const diversityThreshold = 0.4

// diversityWeight balances usage_score against capability_score in the
// diversity selector.
const diversityWeight = 0.5

// defaultFallbackChain is the fixed-priority list strategy=fallback picks
// from, in order, per §4.5 step 6.
var defaultFallbackChain = []string{"gpt-4o-mini", "claude-haiku-4", "deepseek-chat", "mock-fast"}

// Engine implements the six-stage routing pipeline.
type Engine struct {
	pools     *PoolTable
	diversity *diversityCounter
	perf      *perfTracker
	store     store.Store
	logger    core.Logger
}

// NewEngine creates an Engine using the bundled pool table. pass a nil
// st to skip persisting routing-decisions rows (tests, dry runs).
func NewEngine(st store.Store) *Engine {
	return &Engine{
		pools:     DefaultPoolTable(),
		diversity: newDiversityCounter(),
		perf:      newPerfTracker(),
		store:     st,
		logger:    &core.NoOpLogger{},
	}
}

// SetLogger configures the engine's logger, tagged "orchestrator/routing".
func (e *Engine) SetLogger(logger core.Logger) {
	if logger == nil {
		e.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		e.logger = cal.WithComponent("orchestrator/routing")
	} else {
		e.logger = logger
	}
}

// SetPoolTable overrides the bundled pool table, e.g. with an
// operator-supplied pools.yaml.
func (e *Engine) SetPoolTable(pt *PoolTable) { e.pools = pt }

// UpdatePerformance folds a completed task's outcome into the
// model/task-type moving average used by traditional scoring, per
// §4.5.3.
func (e *Engine) UpdatePerformance(model, taskType string, success bool, elapsedMs int64) {
	e.perf.update(model, taskType, success, elapsedMs)
}

// RouteTask runs the full pipeline and returns exactly one ModelSelection.
// Routing never raises to the caller: any internal error degrades to the
// fixed-priority fallback, per §4.5.4.
func (e *Engine) RouteTask(ctx context.Context, req RouteRequest) ModelSelection {
	selection := e.route(req)
	e.diversity.record(selection.Model.Name)
	e.logDecision(ctx, req.SessionID, selection)
	return selection
}

func (e *Engine) route(req RouteRequest) ModelSelection {
	if len(req.AvailableModels) == 0 {
		return e.noModelSentinel()
	}

	// Stage 1: locked-model short-circuit.
	candidates := applyPolicyFilter(req)
	if locked, ok := req.resolveLockedModel(); ok {
		if spec, ok := candidates[locked]; ok {
			return ModelSelection{
				Model:         spec,
				Confidence:    0.95,
				Reasoning:     fmt.Sprintf("model locked for agent_role=%s", req.AgentRole),
				EstimatedCost: providers.CostFor(estimatedUsage(req), spec.CostPer1KTokens),
				Alternatives:  topAlternatives(candidates, spec.Name, 3),
				StrategyTag:   "locked",
				SelectionID:   newSelectionID(),
			}
		}
	}

	// Stage 3: diversity override.
	if sel, ok := e.diversityOverride(req, candidates); ok {
		return sel
	}

	// Stage 4: flagship-pool routing.
	if sel, ok := e.flagshipPoolRoute(req, candidates); ok {
		return sel
	}

	// Stage 5: traditional weighted scoring.
	if sel, ok := e.traditionalScoring(req, candidates); ok {
		return sel
	}

	// Stage 6: default fallback.
	return e.defaultFallback(req, candidates)
}

// applyPolicyFilter implements §4.5 step 2: intersect available_models
// with per-agent and per-task allow-lists (each applied only when
// non-empty), then subtract deny-lists. Falls back to the full available
// set (with a warning) if the result is empty.
func applyPolicyFilter(req RouteRequest) map[string]catalog.ModelSpec {
	filtered := make(map[string]catalog.ModelSpec, len(req.AvailableModels))
	for k, v := range req.AvailableModels {
		filtered[k] = v
	}

	if req.RuntimeOverrides != nil && req.RuntimeOverrides.EnableAllowedModelsByRole {
		if allow, ok := req.RuntimeOverrides.AllowedModelsByRole[req.AgentRole]; ok && len(allow) > 0 {
			filtered = intersect(filtered, allow)
		}
	} else if req.AgentBinding != nil && len(req.AgentBinding.AllowModels) > 0 {
		filtered = intersect(filtered, req.AgentBinding.AllowModels)
	}
	if req.TaskBinding != nil && len(req.TaskBinding.AllowModels) > 0 {
		filtered = intersect(filtered, req.TaskBinding.AllowModels)
	}

	if req.AgentBinding != nil {
		filtered = subtract(filtered, req.AgentBinding.DenyModels)
	}
	if req.TaskBinding != nil {
		filtered = subtract(filtered, req.TaskBinding.DenyModels)
	}

	if len(filtered) == 0 {
		return req.AvailableModels
	}
	return filtered
}

func intersect(models map[string]catalog.ModelSpec, allow map[string]bool) map[string]catalog.ModelSpec {
	out := make(map[string]catalog.ModelSpec)
	for name, spec := range models {
		if allow[name] {
			out[name] = spec
		}
	}
	return out
}

func subtract(models map[string]catalog.ModelSpec, deny map[string]bool) map[string]catalog.ModelSpec {
	if len(deny) == 0 {
		return models
	}
	out := make(map[string]catalog.ModelSpec)
	for name, spec := range models {
		if !deny[name] {
			out[name] = spec
		}
	}
	return out
}

// diversityOverride implements §4.5 step 3 and §4.5.1.
func (e *Engine) diversityOverride(req RouteRequest, candidates map[string]catalog.ModelSpec) (ModelSelection, bool) {
	topModel, share := e.diversity.mostUsedShare()
	if topModel == "" {
		return ModelSelection{}, false
	}
	threshold := math.Max(diversityThreshold, 1.0/float64(len(candidates))+0.15)
	if share <= threshold {
		return ModelSelection{}, false
	}

	var bestName string
	bestScore := -1.0
	for name := range candidates {
		usageScore := e.diversity.usageScore(name)
		capScore := capabilityScore(candidates[name], extractSignals(req))
		score := usageScore*diversityWeight + capScore*(1-diversityWeight)
		if score > bestScore {
			bestScore = score
			bestName = name
		}
	}
	if bestName == "" {
		return ModelSelection{}, false
	}
	spec := candidates[bestName]
	return ModelSelection{
		Model:         spec,
		Confidence:    math.Min(0.6+bestScore*0.3, 0.9),
		Reasoning:     fmt.Sprintf("diversity override: %s held %.0f%% share", topModel, share*100),
		EstimatedCost: providers.CostFor(estimatedUsage(req), spec.CostPer1KTokens),
		Alternatives:  topAlternatives(candidates, bestName, 3),
		StrategyTag:   "diversity",
		SelectionID:   newSelectionID(),
	}, true
}

// flagshipPoolRoute implements §4.5 step 4 and §4.5.2.
func (e *Engine) flagshipPoolRoute(req RouteRequest, candidates map[string]catalog.ModelSpec) (ModelSelection, bool) {
	pool, agentMatch := e.pools.MatchByRole(req.AgentRole)
	if !agentMatch {
		p, ok := e.pools.MatchByTaskType(req.TaskSpec.TaskType)
		if !ok {
			p, ok = e.poolFromSignals(req)
			if !ok {
				return ModelSelection{}, false
			}
		}
		pool = p
	}

	flagship, ok := candidates[pool.Flagship]
	if !ok {
		return ModelSelection{}, false
	}

	confidence := 0.7
	if agentMatch {
		confidence += 0.15
	}
	confidence += e.pools.Affinity(req.TaskSpec.TaskType, pool.Name) * 0.15
	fitBoost := 0.0
	if req.TaskSpec.Complexity == providers.ComplexityHigh {
		fitBoost += 0.05
	}
	if isLongContextSignal(req) {
		fitBoost += 0.05
	}
	if req.TaskSpec.TaskType == "code_generation" {
		fitBoost += 0.05
	}
	if fitBoost > 0.15 {
		fitBoost = 0.15
	}
	confidence = math.Min(confidence+fitBoost, 0.95)

	return ModelSelection{
		Model:         flagship,
		Confidence:    confidence,
		Reasoning:     fmt.Sprintf("flagship of pool %s (agent_match=%v, task_affinity=%.2f)", pool.Name, agentMatch, e.pools.Affinity(req.TaskSpec.TaskType, pool.Name)),
		EstimatedCost: providers.CostFor(estimatedUsage(req), flagship.CostPer1KTokens),
		Alternatives:  topAlternatives(candidates, flagship.Name, 3),
		StrategyTag:   "flagship_pool",
		SelectionID:   newSelectionID(),
	}, true
}

func (e *Engine) poolFromSignals(req RouteRequest) (Pool, bool) {
	if req.TaskSpec.RequiresReasoning || req.TaskSpec.Complexity == providers.ComplexityHigh {
		if p, ok := e.pools.Get("deep_reasoning"); ok {
			return p, true
		}
	}
	if isLongContextSignal(req) || req.TaskSpec.TaskType == "code_generation" {
		if p, ok := e.pools.Get("technical_longseq"); ok {
			return p, true
		}
	}
	return Pool{}, false
}

func isLongContextSignal(req RouteRequest) bool {
	if req.TaskSpec.EstimatedTokens > 4000 {
		return true
	}
	if req.TaskSpec.Context == nil {
		return false
	}
	longCtx, _ := req.TaskSpec.Context["long_context"].(bool)
	return longCtx
}

// traditionalScoring implements §4.5 step 5.
func (e *Engine) traditionalScoring(req RouteRequest, candidates map[string]catalog.ModelSpec) (ModelSelection, bool) {
	if len(candidates) == 0 {
		return ModelSelection{}, false
	}
	signals := extractSignals(req)

	type scored struct {
		name  string
		spec  catalog.ModelSpec
		score float64
	}
	var all []scored
	for name, spec := range candidates {
		quality := capabilityScore(spec, signals)
		performance := e.perf.historicalFactor(name, req.TaskSpec.TaskType)
		cost := costEfficiencyScore(spec)
		total := quality*weightQuality + performance*weightPerformance + cost*weightCost
		all = append(all, scored{name, spec, total})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })

	best := all[0]
	alts := make([]string, 0, 3)
	for i := 1; i < len(all) && i <= 3; i++ {
		alts = append(alts, all[i].name)
	}

	return ModelSelection{
		Model:         best.spec,
		Confidence:    math.Min(0.5+best.score*0.4, 0.85),
		Reasoning:     fmt.Sprintf("traditional weighted score %.2f (quality/performance/cost blend)", best.score),
		EstimatedCost: providers.CostFor(estimatedUsage(req), best.spec.CostPer1KTokens),
		Alternatives:  alts,
		StrategyTag:   "traditional",
		SelectionID:   newSelectionID(),
	}, true
}

// defaultFallback implements §4.5 step 6.
func (e *Engine) defaultFallback(req RouteRequest, candidates map[string]catalog.ModelSpec) ModelSelection {
	for _, name := range defaultFallbackChain {
		if spec, ok := candidates[name]; ok {
			return ModelSelection{
				Model:         spec,
				Confidence:    0.3,
				Reasoning:     "no stronger strategy matched, using fixed-priority default",
				EstimatedCost: providers.CostFor(estimatedUsage(req), spec.CostPer1KTokens),
				Alternatives:  topAlternatives(candidates, spec.Name, 3),
				StrategyTag:   "fallback",
				SelectionID:   newSelectionID(),
			}
		}
	}
	// Nothing on the fixed list is available either: take whatever
	// candidate exists, deterministically, rather than sentinel out when
	// the caller already proved a non-empty candidate set exists.
	for name, spec := range candidates {
		return ModelSelection{
			Model:         spec,
			Confidence:    0.3,
			Reasoning:     "no stronger strategy matched and no default-list model available",
			StrategyTag:   "fallback",
			SelectionID:   newSelectionID(),
		}
	}
	return e.noModelSentinel()
}

func (e *Engine) noModelSentinel() ModelSelection {
	return ModelSelection{
		Model:       catalog.ModelSpec{Name: NoModelSentinel},
		StrategyTag: "fallback",
		Reasoning:   "no model available",
		SelectionID: newSelectionID(),
	}
}

// extractSignals maps task characteristics to capability weights for
// traditional scoring's quality term, per §4.5 step 5's "characteristic
// analysis".
func extractSignals(req RouteRequest) map[catalog.Capability]float64 {
	w := make(map[catalog.Capability]float64)
	if req.TaskSpec.RequiresReasoning {
		w[catalog.CapReasoning] = 1
	}
	if req.TaskSpec.RequiresChinese {
		w[catalog.CapChinese] = 1
	}
	if req.TaskSpec.RequiresSpeed {
		w[catalog.CapSpeed] = 1
	}
	if ratio := providers.ChineseCharRatio(req.TaskDescription); ratio > 0.3 {
		if ratio > w[catalog.CapChinese] {
			w[catalog.CapChinese] = ratio
		}
	}
	switch req.TaskSpec.TaskType {
	case "financial_report", "fundamental_analysis":
		w[catalog.CapFinancialAnalysis] = 1
	case "technical_analysis", "backtesting":
		w[catalog.CapTechnicalAnalysis] = 1
	case "code_generation", "tool_development":
		w[catalog.CapCodeGeneration] = 1
	case "time_series":
		w[catalog.CapTimeSeries] = 1
	}
	if isLongContextSignal(req) {
		w[catalog.CapLongContext] = 1
	}
	if len(w) == 0 {
		w[catalog.CapReliability] = 1
	}
	return w
}

func capabilityScore(spec catalog.ModelSpec, weights map[catalog.Capability]float64) float64 {
	var weightedSum, weightTotal float64
	for cap, weight := range weights {
		weightedSum += spec.Capabilities[cap] * weight
		weightTotal += weight
	}
	if weightTotal == 0 {
		return 0.5
	}
	return weightedSum / weightTotal
}

func costEfficiencyScore(spec catalog.ModelSpec) float64 {
	if score, ok := spec.Capabilities[catalog.CapCostEfficiency]; ok {
		return score
	}
	return 1.0 / (1.0 + spec.CostPer1KTokens*100)
}

func topAlternatives(candidates map[string]catalog.ModelSpec, exclude string, n int) []string {
	names := make([]string, 0, len(candidates))
	for name := range candidates {
		if name != exclude {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func estimatedUsage(req RouteRequest) providers.TokenUsage {
	tokens := req.TaskSpec.EstimatedTokens
	if tokens < 1 {
		tokens = 1
	}
	return providers.TokenUsage{TotalTokens: tokens}
}

func newSelectionID() string { return uuid.New().String() }

// routingDecisionRow is what gets appended to the routing_decisions
// stream, per §3's persisted-key layout.
type routingDecisionRow struct {
	SessionID   string    `json:"session_id"`
	SelectionID string    `json:"selection_id"`
	Model       string    `json:"model"`
	StrategyTag string    `json:"strategy_tag"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *Engine) logDecision(ctx context.Context, sessionID string, sel ModelSelection) {
	if e.store == nil {
		return
	}
	row := routingDecisionRow{
		SessionID:   sessionID,
		SelectionID: sel.SelectionID,
		Model:       sel.Model.Name,
		StrategyTag: sel.StrategyTag,
		Confidence:  sel.Confidence,
		Timestamp:   time.Now(),
	}
	data, err := json.Marshal(row)
	if err != nil {
		e.logger.Error("Failed to marshal routing decision", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := e.store.Append(ctx, store.RoutingDecisionsStream, data); err != nil {
		e.logger.Warn("Failed to persist routing decision", map[string]interface{}{"error": err.Error()})
	}
}
