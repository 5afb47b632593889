package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmind/orchestrator/catalog"
	"github.com/stockmind/orchestrator/providers"
)

func availableModels() map[string]catalog.ModelSpec {
	out := make(map[string]catalog.ModelSpec)
	for _, m := range catalog.DefaultModels() {
		out[m.Name] = m
	}
	return out
}

func TestRouteTaskLockedModelShortCircuit(t *testing.T) {
	e := NewEngine(nil)
	sel := e.RouteTask(context.Background(), RouteRequest{
		AgentRole:        "technical_analyst",
		ContextLockModel: "gpt-4o",
		AvailableModels:  availableModels(),
		TaskSpec:         providers.TaskSpec{TaskType: "technical_analysis", EstimatedTokens: 100},
	})
	assert.Equal(t, "locked", sel.StrategyTag)
	assert.Equal(t, "gpt-4o", sel.Model.Name)
	assert.Equal(t, 0.95, sel.Confidence)
}

func TestRouteTaskFlagshipPoolByRole(t *testing.T) {
	e := NewEngine(nil)
	sel := e.RouteTask(context.Background(), RouteRequest{
		AgentRole:       "fundamental_expert",
		AvailableModels: availableModels(),
		TaskSpec:        providers.TaskSpec{TaskType: "fundamental_analysis", EstimatedTokens: 500},
	})
	assert.Equal(t, "flagship_pool", sel.StrategyTag)
	assert.Equal(t, "claude-opus-4", sel.Model.Name)
	assert.GreaterOrEqual(t, sel.Confidence, 0.7)
	assert.LessOrEqual(t, sel.Confidence, 0.95)
}

func TestRouteTaskFlagshipPoolTechnical(t *testing.T) {
	e := NewEngine(nil)
	sel := e.RouteTask(context.Background(), RouteRequest{
		AgentRole:       "technical_analyst",
		AvailableModels: availableModels(),
		TaskSpec:        providers.TaskSpec{TaskType: "technical_analysis", EstimatedTokens: 500},
	})
	assert.Equal(t, "flagship_pool", sel.StrategyTag)
	assert.Equal(t, "qwen-max", sel.Model.Name)
}

func TestRouteTaskPolicyFilterEmptyFallsBackToFullSet(t *testing.T) {
	e := NewEngine(nil)
	sel := e.RouteTask(context.Background(), RouteRequest{
		AgentRole:       "news_hunter",
		AvailableModels: availableModels(),
		TaskSpec:        providers.TaskSpec{TaskType: "news_analysis", EstimatedTokens: 200},
		AgentBinding: &AgentBinding{
			AllowModels: map[string]bool{"nonexistent-model": true},
		},
	})
	assert.NotEmpty(t, sel.Model.Name)
	assert.NotEqual(t, NoModelSentinel, sel.Model.Name)
}

func TestRouteTaskNoModelsReturnsSentinel(t *testing.T) {
	e := NewEngine(nil)
	sel := e.RouteTask(context.Background(), RouteRequest{
		AgentRole:       "technical_analyst",
		AvailableModels: map[string]catalog.ModelSpec{},
		TaskSpec:        providers.TaskSpec{TaskType: "technical_analysis", EstimatedTokens: 100},
	})
	assert.Equal(t, NoModelSentinel, sel.Model.Name)
}

func TestDiversityOverrideTriggersAfterHeavyUse(t *testing.T) {
	e := NewEngine(nil)
	req := RouteRequest{
		AgentRole:       "unmapped_role",
		AvailableModels: map[string]catalog.ModelSpec{"mock-fast": catalog.DefaultModelsByProvider(catalog.ProviderMock)["mock-fast"]},
		TaskSpec:        providers.TaskSpec{TaskType: "unmapped_task", EstimatedTokens: 10},
	}
	// Only one candidate, so diversity can't actually pick a different
	// model, but the accounting itself must not panic or misbehave with
	// a single-model candidate set across repeated calls.
	for i := 0; i < 10; i++ {
		sel := e.RouteTask(context.Background(), req)
		require.Equal(t, "mock-fast", sel.Model.Name)
	}
}

func TestPoolTableAffinityLookup(t *testing.T) {
	pt := DefaultPoolTable()
	assert.InDelta(t, 1.0, pt.Affinity("financial_report", "deep_reasoning"), 0.001)
	assert.Equal(t, 0.0, pt.Affinity("unknown_task", "deep_reasoning"))
}

func TestCapabilityScoreUnknownDefaultsNeutral(t *testing.T) {
	spec := catalog.ModelSpec{Capabilities: map[catalog.Capability]float64{}}
	score := capabilityScore(spec, map[catalog.Capability]float64{})
	assert.Equal(t, 0.5, score)
}
