package anthropiclike

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
			"content": [{"type": "text", "text": "hold, volatility too high"}],
			"usage": {"input_tokens": 12, "output_tokens": 6}
		}`))
	}))
	defer server.Close()

	a := New(Config{APIKey: "test-key", BaseURL: server.URL})
	result, err := a.ExecuteTask(context.Background(), "claude-opus-4", "what next for AAPL?", providers.TaskSpec{}, providers.Options{})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Text, "volatility")
}

func TestExecuteTaskMissingAPIKey(t *testing.T) {
	a := New(Config{BaseURL: "http://unused.invalid"})
	result, err := a.ExecuteTask(context.Background(), "claude-opus-4", "prompt", providers.TaskSpec{}, providers.Options{})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "api_key_missing", result.ErrorKind)
}

func TestExecuteTaskTripsBreakerAfterSustainedTransportFailures(t *testing.T) {
	a := New(Config{APIKey: "test-key", BaseURL: "http://127.0.0.1:1"})

	var lastResult providers.TaskResult
	for i := 0; i < 20; i++ {
		result, err := a.ExecuteTask(context.Background(), "claude-opus-4", "prompt", providers.TaskSpec{}, providers.Options{})
		require.NoError(t, err)
		lastResult = result
	}

	assert.False(t, lastResult.Success)
	assert.Equal(t, "model_unavailable", lastResult.ErrorKind)
}
