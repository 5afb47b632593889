// Package openailike implements the OpenAI-chat-completions-compatible
// provider adapter: one HTTP client shape reused against any backend that
// speaks the same wire protocol (OpenAI itself, and OpenAI-compatible
// third-party endpoints).
package openailike

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

// Config configures an Adapter instance.
type Config struct {
	APIKey  string
	BaseURL string
	// Models restricts the adapter to a subset of the catalog's
	// provider-tagged models; nil uses every model tagged with Provider.
	Models   map[string]catalog.ModelSpec
	Provider catalog.Provider
	Logger   core.Logger
}

// Adapter talks to an OpenAI-chat-completions-shaped HTTP API.
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	models     map[string]catalog.ModelSpec
	logger     core.Logger
	breaker    *resilience.CircuitBreaker
}

// New constructs an Adapter. If cfg.Models is nil, the bundled catalog's
// models tagged with cfg.Provider (defaulting to catalog.ProviderOpenAI)
// are used.
func New(cfg Config) *Adapter {
	provider := cfg.Provider
	if provider == "" {
		provider = catalog.ProviderOpenAI
	}
	models := cfg.Models
	if models == nil {
		models = catalog.DefaultModelsByProvider(provider)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestrator/providers")
	}

	breaker, err := resilience.CreateCircuitBreaker("openailike:"+baseURL, resilience.ResilienceDependencies{Logger: logger})
	if err != nil {
		// the factory's defaults are always valid; this only guards
		// against a future config change breaking the invariant silently.
		breaker = nil
	}

	return &Adapter{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   120 * time.Second,
		},
		models:  models,
		logger:  logger,
		breaker: breaker,
	}
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

// HealthCheck performs a short, cheap request; any backend that responds
// at all (even with an auth error) is considered reachable here, since
// actual credential failures surface per-call as auth_error.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	if a.apiKey == "" {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// doRequest runs req through the adapter's circuit breaker when one is
// configured, tripping it open after a sustained run of transport-level
// failures so callers stop paying the full request timeout on every
// fallback attempt while the backend is down.
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

func (a *Adapter) ExecuteTask(ctx context.Context, modelName, prompt string, spec providers.TaskSpec, opts providers.Options) (providers.TaskResult, error) {
	start := time.Now()
	model, ok := a.models[modelName]
	if !ok {
		return errorResult("validation_error", "unknown model "+modelName, start), nil
	}
	if a.apiKey == "" {
		return errorResult("api_key_missing", "no API key configured for "+string(model.Provider), start), nil
	}

	timeout := providers.ResolveTimeout(opts, model.Kind)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = model.MaxOutputTokens
	}
	reqBody := map[string]interface{}{
		"model":       modelName,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": opts.Temperature,
		"max_tokens":  maxTokens,
		"stream":      opts.Stream && model.SupportsStreaming,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return errorResult("internal_error", err.Error(), start), nil
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return errorResult("internal_error", err.Error(), start), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

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

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errorResult("auth_error", fmt.Sprintf("status %d from %s", resp.StatusCode, a.baseURL), start), nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return errorResult("rate_limited", "rate limited by provider", start), nil
	}
	if resp.StatusCode >= 500 {
		return errorResult("model_unavailable", fmt.Sprintf("status %d from %s", resp.StatusCode, a.baseURL), start), nil
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return errorResult("http_error", fmt.Sprintf("status %d: %s", resp.StatusCode, string(data)), start), nil
	}

	if reqBody["stream"] == true && opts.OnToken != nil {
		return a.readStream(resp.Body, prompt, &model, opts, start), nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResult("http_error", err.Error(), start), nil
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return errorResult("internal_error", "failed to parse response: "+err.Error(), start), nil
	}
	if len(parsed.Choices) == 0 {
		return errorResult("empty_response", "provider returned no choices", start), nil
	}

	text := parsed.Choices[0].Message.Content
	usage := providers.TokenUsage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = providers.EstimateUsageFromText(prompt, text)
	}

	return providers.TaskResult{
		Text:            text,
		ModelUsed:       &model,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		ActualCost:      providers.CostFor(usage, model.CostPer1KTokens),
		TokenUsage:      usage,
		Success:         true,
		TaskID:          fmt.Sprintf("%s-%d", modelName, start.UnixNano()),
	}, nil
}

func (a *Adapter) readStream(body io.Reader, prompt string, model *catalog.ModelSpec, opts providers.Options, start time.Time) providers.TaskResult {
	var full bytes.Buffer
	decoder := providers.NewSSEDecoder(body)
	decoder.Each(func(payload string) bool {
		if payload == "[DONE]" {
			return false
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return true // malformed fragment, skip silently
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content == "" {
				continue
			}
			full.WriteString(c.Delta.Content)
			if opts.OnToken != nil {
				_ = opts.OnToken(c.Delta.Content)
			}
		}
		return true
	})

	text := full.String()
	if text == "" {
		return errorResult("empty_response", "stream produced no content", start)
	}
	usage := providers.EstimateUsageFromText(prompt, text)
	return providers.TaskResult{
		Text:            text,
		ModelUsed:       model,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		ActualCost:      providers.CostFor(usage, model.CostPer1KTokens),
		TokenUsage:      usage,
		Success:         true,
		TaskID:          fmt.Sprintf("%s-stream-%d", model.Name, start.UnixNano()),
	}
}

func errorResult(kind, message string, start time.Time) providers.TaskResult {
	return providers.TaskResult{
		Success:         false,
		ErrorKind:       kind,
		ErrorMessage:    message,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}
