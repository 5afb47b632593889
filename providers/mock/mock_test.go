package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmind/orchestrator/providers"
)

func TestAdapterExecuteTaskSuccess(t *testing.T) {
	a := New()
	result, err := a.ExecuteTask(context.Background(), "mock-fast", "what is the outlook for AAPL?", providers.TaskSpec{
		TaskType:        "technical_analysis",
		Complexity:      providers.ComplexityLow,
		EstimatedTokens: 10,
	}, providers.Options{})

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.ModelUsed)
	assert.Equal(t, "mock-fast", result.ModelUsed.Name)
	assert.Greater(t, result.TokenUsage.TotalTokens, 0)
}

func TestAdapterFailNextWith(t *testing.T) {
	a := New()
	a.FailNextWith("mock-fast", "timeout")

	result, err := a.ExecuteTask(context.Background(), "mock-fast", "prompt", providers.TaskSpec{}, providers.Options{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "timeout", result.ErrorKind)

	// The arrangement only applies once.
	result2, err := a.ExecuteTask(context.Background(), "mock-fast", "prompt", providers.TaskSpec{}, providers.Options{})
	require.NoError(t, err)
	assert.True(t, result2.Success)
}

func TestAdapterUnknownModel(t *testing.T) {
	a := New()
	result, err := a.ExecuteTask(context.Background(), "does-not-exist", "x", providers.TaskSpec{}, providers.Options{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "validation_error", result.ErrorKind)
}

func TestAdapterStreaming(t *testing.T) {
	a := New()
	var fragments []string
	_, err := a.ExecuteTask(context.Background(), "mock-accurate", "stream this please", providers.TaskSpec{}, providers.Options{
		Stream: true,
		OnToken: func(f string) error {
			fragments = append(fragments, f)
			return nil
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, fragments)
}

func TestHealthCheckReflectsSetHealthy(t *testing.T) {
	a := New()
	assert.True(t, a.HealthCheck(context.Background()))
	a.SetHealthy(false)
	assert.False(t, a.HealthCheck(context.Background()))
}
