package openailike

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmind/orchestrator/providers"
)

func TestExecuteTaskSuccessParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "buy the dip"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	a := New(Config{APIKey: "test-key", BaseURL: server.URL})
	result, err := a.ExecuteTask(context.Background(), "gpt-4o", "what next for AAPL?", providers.TaskSpec{}, providers.Options{})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "buy the dip", result.Text)
	assert.Equal(t, 15, result.TokenUsage.TotalTokens)
}

func TestExecuteTaskMissingAPIKey(t *testing.T) {
	a := New(Config{BaseURL: "http://unused.invalid"})
	result, err := a.ExecuteTask(context.Background(), "gpt-4o", "prompt", providers.TaskSpec{}, providers.Options{})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "api_key_missing", result.ErrorKind)
}

func TestExecuteTaskUnknownModel(t *testing.T) {
	a := New(Config{APIKey: "test-key"})
	result, err := a.ExecuteTask(context.Background(), "not-a-real-model", "prompt", providers.TaskSpec{}, providers.Options{})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "validation_error", result.ErrorKind)
}

func TestExecuteTaskRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	a := New(Config{APIKey: "test-key", BaseURL: server.URL})
	result, err := a.ExecuteTask(context.Background(), "gpt-4o", "prompt", providers.TaskSpec{}, providers.Options{})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "rate_limited", result.ErrorKind)
}

func TestExecuteTaskTripsBreakerAfterSustainedTransportFailures(t *testing.T) {
	// No listener behind this URL: every call fails at dial time.
	a := New(Config{APIKey: "test-key", BaseURL: "http://127.0.0.1:1"})

	var lastResult providers.TaskResult
	for i := 0; i < 20; i++ {
		result, err := a.ExecuteTask(context.Background(), "gpt-4o", "prompt", providers.TaskSpec{}, providers.Options{})
		require.NoError(t, err)
		lastResult = result
	}

	assert.False(t, lastResult.Success)
	assert.Equal(t, "model_unavailable", lastResult.ErrorKind)
}
