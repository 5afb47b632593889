// Package mock provides an in-process provider adapter with no network
// dependency, used by tests and by local development when no real
// provider credentials are configured.
package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/stockmind/orchestrator/catalog"
	"github.com/stockmind/orchestrator/providers"
)

// Adapter answers every task with a canned, deterministic response. It
// never fails unless configured to via FailNextWith.
type Adapter struct {
	models  map[string]catalog.ModelSpec
	healthy bool

	failNext map[string]string // model -> error_kind to return once
}

// New creates a mock adapter serving the catalog's mock-tagged models.
func New() *Adapter {
	return &Adapter{
		models:   catalog.DefaultModelsByProvider(catalog.ProviderMock),
		healthy:  true,
		failNext: make(map[string]string),
	}
}

// SetHealthy lets tests simulate a provider outage.
func (a *Adapter) SetHealthy(healthy bool) { a.healthy = healthy }

// FailNextWith arranges for the next ExecuteTask call against modelName
// to fail with the given error kind, then clears the arrangement.
func (a *Adapter) FailNextWith(modelName, errorKind string) {
	a.failNext[modelName] = errorKind
}

func (a *Adapter) SupportedModels() map[string]catalog.ModelSpec {
	out := make(map[string]catalog.ModelSpec, len(a.models))
	for k, v := range a.models {
		out[k] = v
	}
	return out
}

func (a *Adapter) HealthCheck(ctx context.Context) bool { return a.healthy }

func (a *Adapter) EstimateCost(modelName string, estimatedTokens int) float64 {
	spec, ok := a.models[modelName]
	if !ok {
		return 0
	}
	return float64(estimatedTokens) / 1000.0 * spec.CostPer1KTokens
}

func (a *Adapter) ExecuteTask(ctx context.Context, modelName, prompt string, spec providers.TaskSpec, opts providers.Options) (providers.TaskResult, error) {
	start := time.Now()
	model, ok := a.models[modelName]
	if !ok {
		return providers.TaskResult{Success: false, ErrorKind: "validation_error", ErrorMessage: "unknown mock model " + modelName}, nil
	}

	if kind, failing := a.failNext[modelName]; failing {
		delete(a.failNext, modelName)
		return providers.TaskResult{
			Success:         false,
			ErrorKind:       kind,
			ErrorMessage:    fmt.Sprintf("mock adapter forced %s for %s", kind, modelName),
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	text := fmt.Sprintf("[mock:%s] analysis for task_type=%s complexity=%s: %s", modelName, spec.TaskType, spec.Complexity, truncate(prompt, 80))

	if opts.Stream && opts.OnToken != nil {
		for _, fragment := range chunk(text, 16) {
			_ = opts.OnToken(fragment)
		}
	}

	usage := providers.EstimateUsageFromText(prompt, text)
	result := providers.TaskResult{
		Text:            text,
		ModelUsed:       &model,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		ActualCost:      providers.CostFor(usage, model.CostPer1KTokens),
		TokenUsage:      usage,
		Success:         true,
		TaskID:          fmt.Sprintf("mock-%d", time.Now().UnixNano()),
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func chunk(s string, size int) []string {
	var out []string
	for len(s) > 0 {
		if len(s) < size {
			out = append(out, s)
			break
		}
		out = append(out, s[:size])
		s = s[size:]
	}
	return out
}
