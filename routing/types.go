// Package routing implements the smart routing engine (component C5): for
// each task, picks exactly one model and a prioritized alternatives list,
// with a human-readable explanation of why.
package routing

import (
	"github.com/stockmind/orchestrator/catalog"
	"github.com/stockmind/orchestrator/providers"
)

// ModelSelection is a routing decision: exactly one chosen model plus the
// reasoning and alternatives behind it.
type ModelSelection struct {
	Model           catalog.ModelSpec
	Confidence      float64
	Reasoning       string
	EstimatedCost   float64
	EstimatedTimeMs int64
	Alternatives    []string
	StrategyTag     string
	SelectionID     string
}

// Explain renders the human-readable reasoning string callers surface in
// UI/debugging, combining the strategy tag with the engine's Reasoning
// text so a reader never has to cross-reference the two separately.
func (s ModelSelection) Explain() string {
	if s.Reasoning == "" {
		return s.StrategyTag
	}
	return s.StrategyTag + ": " + s.Reasoning
}

// NoModelSentinel is the model name C5 returns when no model is
// available at all; C6 translates it into error_kind=no_model_available.
const NoModelSentinel = "__no_model__"

// AgentBinding is per-agent-role policy consulted by routing and the
// manager's fallback chain.
type AgentBinding struct {
	LockedModel   string
	AllowModels   map[string]bool
	DenyModels    map[string]bool
	FallbackChain []string
}

// TaskBinding is per-task-type policy.
type TaskBinding struct {
	AllowModels map[string]bool
	DenyModels  map[string]bool
}

// RuntimeOverrides are session- or request-scoped overrides that dominate
// AgentBinding/TaskBinding.
type RuntimeOverrides struct {
	EnableModelLock           bool
	ModelOverrides            map[string]string // agent_role -> model
	EnableAllowedModelsByRole bool
	AllowedModelsByRole       map[string]map[string]bool // agent_role -> allowed set
}

// RouteRequest carries everything the engine needs to pick a model for
// one task.
type RouteRequest struct {
	TaskDescription  string
	AgentRole        string
	TaskSpec         providers.TaskSpec
	AvailableModels  map[string]catalog.ModelSpec
	SessionID        string
	ContextLockModel string // highest-priority override, from the immediate call context
	RuntimeOverrides *RuntimeOverrides
	AgentBinding     *AgentBinding
	TaskBinding      *TaskBinding
}

// resolveLockedModel applies the override precedence from §4.5 step 1:
// context override > RuntimeOverrides > AgentBinding.locked_model.
func (r RouteRequest) resolveLockedModel() (string, bool) {
	if r.ContextLockModel != "" {
		return r.ContextLockModel, true
	}
	if r.RuntimeOverrides != nil && r.RuntimeOverrides.EnableModelLock {
		if m, ok := r.RuntimeOverrides.ModelOverrides[r.AgentRole]; ok && m != "" {
			return m, true
		}
	}
	if r.AgentBinding != nil && r.AgentBinding.LockedModel != "" {
		return r.AgentBinding.LockedModel, true
	}
	return "", false
}
