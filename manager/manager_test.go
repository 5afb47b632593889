package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmind/orchestrator/budget"
	"github.com/stockmind/orchestrator/catalog"
	"github.com/stockmind/orchestrator/providers"
	"github.com/stockmind/orchestrator/providers/mock"
	"github.com/stockmind/orchestrator/routing"
	"github.com/stockmind/orchestrator/store"
)

func newTestManager(t *testing.T) (*Manager, *mock.Adapter) {
	t.Helper()
	registry := catalog.NewRegistry()
	router := routing.NewEngine(nil)
	fs, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	tracker := budget.NewTracker(fs)
	m := New(registry, router, tracker)
	adapter := mock.New()
	m.RegisterAdapter(adapter)
	return m, adapter
}

func TestExecuteTaskSucceedsOnFirstAttempt(t *testing.T) {
	m, _ := newTestManager(t)
	result := m.ExecuteTask(context.Background(), "technical_analyst", "assess momentum", "technical_analysis", providers.ComplexityMedium, RequestContext{SessionID: "s1"})
	require.True(t, result.Success)
	assert.NotNil(t, result.ModelUsed)
	assert.Contains(t, result.ModelUsed.Name, "mock")
}

func TestExecuteTaskHonorsModelOverride(t *testing.T) {
	m, _ := newTestManager(t)
	result := m.ExecuteTask(context.Background(), "technical_analyst", "assess momentum", "technical_analysis", providers.ComplexityMedium, RequestContext{
		SessionID:     "s2",
		ModelOverride: "mock-fast",
	})
	require.True(t, result.Success)
	assert.Equal(t, "mock-fast", result.ModelUsed.Name)
}

func TestExecuteTaskBudgetExceededShortCircuits(t *testing.T) {
	m, _ := newTestManager(t)
	sessionID := "s3"
	m.budget.Record(context.Background(), budget.UsageRecord{SessionID: sessionID, EstimatedCost: 10.0})

	result := m.ExecuteTask(context.Background(), "technical_analyst", "assess momentum", "technical_analysis", providers.ComplexityMedium, RequestContext{
		SessionID: sessionID,
		BudgetCap: 5.0,
	})
	require.False(t, result.Success)
	assert.Equal(t, "budget_exceeded", result.ErrorKind)
}

func TestExecuteTaskFallsBackToSimplifiedModeAfterRepeatedFailure(t *testing.T) {
	m, adapter := newTestManager(t)
	sessionID := "s4"

	adapter.FailNextWith("mock-accurate", "model_unavailable")
	adapter.FailNextWith("mock-fast", "model_unavailable")

	result := m.ExecuteTask(context.Background(), "technical_analyst", "assess momentum", "technical_analysis", providers.ComplexityMedium, RequestContext{
		SessionID:     sessionID,
		ModelOverride: "mock-accurate",
	})
	require.True(t, result.Success)
	assert.Contains(t, result.Text, simplifiedModePrefix)
}

func TestExecuteTaskNoFallbackStopsAfterSingleAttempt(t *testing.T) {
	m, adapter := newTestManager(t)
	sessionID := "s4b"

	adapter.FailNextWith("mock-accurate", "model_unavailable")

	result := m.ExecuteTask(context.Background(), "technical_analyst", "assess momentum", "technical_analysis", providers.ComplexityMedium, RequestContext{
		SessionID:     sessionID,
		ModelOverride: "mock-accurate",
		NoFallback:    true,
	})
	require.False(t, result.Success)
	assert.Equal(t, "model_unavailable", result.ErrorKind)
}

func TestExecuteTaskNoModelAvailableWhenCircuitsTripped(t *testing.T) {
	m, _ := newTestManager(t)
	sessionID := "s5"
	for i := 0; i < circuitFailureThreshold; i++ {
		m.circuits.recordFailure(sessionID, "mock-accurate")
		m.circuits.recordFailure(sessionID, "mock-fast")
	}

	result := m.ExecuteTask(context.Background(), "technical_analyst", "assess momentum", "technical_analysis", providers.ComplexityMedium, RequestContext{
		SessionID: sessionID,
	})
	require.False(t, result.Success)
	assert.Equal(t, "no_model_available", result.ErrorKind)
}

func TestEndSessionClearsCircuitsAndBudget(t *testing.T) {
	m, _ := newTestManager(t)
	sessionID := "s6"
	m.circuits.recordFailure(sessionID, "mock-fast")
	m.budget.Record(context.Background(), budget.UsageRecord{SessionID: sessionID, EstimatedCost: 1.0})

	m.EndSession(sessionID)

	assert.Empty(t, m.CircuitStatuses(sessionID))
	assert.Equal(t, 0.0, m.budget.SessionCost(sessionID))
}
