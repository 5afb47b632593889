// Package manager implements the multi-model manager (component C6):
// executes a single agent task end to end, including routing, fallback,
// retries, circuit-breaking and usage accounting.
package manager

import (
	"github.com/stockmind/orchestrator/providers"
	"github.com/stockmind/orchestrator/routing"
)

// RequestContext carries session- and request-scoped inputs that
// dominate an agent's static bindings, per §3's RuntimeOverrides and
// §4.6 step 3.
type RequestContext struct {
	SessionID        string
	ModelOverride    string // "provider/name" or a short alias; "" means let the router decide
	AnalysisType     string
	BudgetCap        float64
	AgentBinding     *routing.AgentBinding
	TaskBinding      *routing.TaskBinding
	RuntimeOverrides *routing.RuntimeOverrides
	FallbackChain    []string // optional request-scoped "provider:model" list from AnalysisConfig
	// NoFallback forces a single attempt against the selected model only:
	// buildAttemptChain drops every alternative/binding/request fallback
	// candidate. Used by the simplified-collaboration path, which needs
	// its own short attempt list rather than paying for the manager's
	// full 3-model, 1s/2s backoff chain inside its 30s per-task ceiling.
	NoFallback       bool
	Temperature      float64
	MaxTokens        int
	Stream           bool
	OnToken          providers.OnTokenFunc
}

// CircuitStatus is a human-readable snapshot of one (session, model)
// circuit breaker slot, exposed for operators/debugging. Supplementing
// §4.6's circuit-breaker behavior with an introspection surface the
// original spec leaves implicit.
type CircuitStatus struct {
	SessionID    string
	ModelName    string
	FailureCount int
	Tripped      bool
	WindowStart  int64 // unix seconds of the oldest failure counted in the current window
}

// TaskResult re-exports providers.TaskResult so callers of manager don't
// need to import providers directly for the common case.
type TaskResult = providers.TaskResult
