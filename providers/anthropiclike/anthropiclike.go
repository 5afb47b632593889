// Package anthropiclike implements the vendor-native provider adapter for
// Anthropic's Messages API: a distinct request/response shape and auth
// header convention from the OpenAI-compatible family in
// providers/openailike.
package anthropiclike

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stockmind/orchestrator/catalog"
	"github.com/stockmind/orchestrator/core"
	"github.com/stockmind/orchestrator/providers"
	"github.com/stockmind/orchestrator/resilience"
)

const anthropicVersion = "2023-06-01"

// Config configures an Adapter instance.
type Config struct {
	APIKey  string
	BaseURL string
	Models  map[string]catalog.ModelSpec
	Logger  core.Logger
}

// Adapter talks to the Anthropic Messages API.
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	models     map[string]catalog.ModelSpec
	logger     core.Logger
	breaker    *resilience.CircuitBreaker
}

// New constructs an Adapter. If cfg.Models is nil, the bundled catalog's
// anthropic-tagged models are used.
func New(cfg Config) *Adapter {
	models := cfg.Models
	if models == nil {
		models = catalog.DefaultModelsByProvider(catalog.ProviderAnthropic)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestrator/providers")
	}
	breaker, err := resilience.CreateCircuitBreaker("anthropiclike:"+baseURL, resilience.ResilienceDependencies{Logger: logger})
	if err != nil {
		breaker = nil
	}

	return &Adapter{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   150 * time.Second,
		},
		models:  models,
		logger:  logger,
		breaker: breaker,
	}
}

// doRequest runs req through the adapter's circuit breaker, tripping it
// open after a sustained run of transport-level failures.
func (a *Adapter) doRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	if a.breaker == nil {
		return a.httpClient.Do(req)
	}
	var resp *http.Response
	err := a.breaker.Execute(ctx, func() error {
		var doErr error
		resp, doErr = a.httpClient.Do(req)
		return doErr
	})
	return resp, err
}

func (a *Adapter) SupportedModels() map[string]catalog.ModelSpec {
	out := make(map[string]catalog.ModelSpec, len(a.models))
	for k, v := range a.models {
		out[k] = v
	}
	return out
}

func (a *Adapter) EstimateCost(modelName string, estimatedTokens int) float64 {
	spec, ok := a.models[modelName]
	if !ok {
		return 0
	}
	return float64(estimatedTokens) / 1000.0 * spec.CostPer1KTokens
}

func (a *Adapter) HealthCheck(ctx context.Context) bool {
	return a.apiKey != ""
}

func (a *Adapter) ExecuteTask(ctx context.Context, modelName, prompt string, spec providers.TaskSpec, opts providers.Options) (providers.TaskResult, error) {
	start := time.Now()
	model, ok := a.models[modelName]
	if !ok {
		return errorResult("validation_error", "unknown model "+modelName, start), nil
	}
	if a.apiKey == "" {
		return errorResult("api_key_missing", "no Anthropic API key configured", start), nil
	}

	timeout := providers.ResolveTimeout(opts, model.Kind)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = model.MaxOutputTokens
	}
	reqBody := map[string]interface{}{
		"model":      modelName,
		"max_tokens": maxTokens,
		"messages":   []map[string]string{{"role": "user", "content": prompt}},
	}
	if opts.Temperature > 0 {
		reqBody["temperature"] = opts.Temperature
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return errorResult("internal_error", err.Error(), start), nil
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return errorResult("internal_error", err.Error(), start), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.doRequest(callCtx, req)
	if err != nil {
		if errors.Is(err, core.ErrCircuitBreakerOpen) {
			return errorResult("model_unavailable", err.Error(), start), nil
		}
		kind := "http_error"
		if callCtx.Err() != nil {
			kind = "timeout"
		}
		return errorResult(kind, err.Error(), start), nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errorResult("auth_error", fmt.Sprintf("status %d", resp.StatusCode), start), nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return errorResult("rate_limited", "rate limited by provider", start), nil
	case resp.StatusCode >= 500:
		return errorResult("model_unavailable", fmt.Sprintf("status %d", resp.StatusCode), start), nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResult("http_error", err.Error(), start), nil
	}
	if resp.StatusCode != http.StatusOK {
		return errorResult("http_error", fmt.Sprintf("status %d: %s", resp.StatusCode, string(data)), start), nil
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return errorResult("internal_error", "failed to parse response: "+err.Error(), start), nil
	}

	var text bytes.Buffer
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return errorResult("empty_response", "provider returned no text content", start), nil
	}

	usage := providers.TokenUsage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}
	if usage.TotalTokens == 0 {
		usage = providers.EstimateUsageFromText(prompt, text.String())
	}

	if opts.Stream && opts.OnToken != nil {
		// Anthropic streaming uses a distinct SSE event vocabulary
		// (content_block_delta); the adapter currently delivers the
		// complete text as a single fragment rather than decoding it
		// incrementally. Real token-by-token delivery is future work.
		opts.OnToken(text.String())
	}

	return providers.TaskResult{
		Text:            text.String(),
		ModelUsed:       &model,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		ActualCost:      providers.CostFor(usage, model.CostPer1KTokens),
		TokenUsage:      usage,
		Success:         true,
		TaskID:          fmt.Sprintf("%s-%d", modelName, start.UnixNano()),
	}, nil
}

func errorResult(kind, message string, start time.Time) providers.TaskResult {
	return providers.TaskResult{
		Success:         false,
		ErrorKind:       kind,
		ErrorMessage:    message,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}
