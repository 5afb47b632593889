// Package gateway implements the third reference adapter: a multi-model
// gateway that fronts several OpenAI-protocol-compatible backends
// (DeepSeek, Qwen, Gemini-via-proxy, Kimi, ...) behind one adapter,
// grounded on the teacher's alias-based sub-provider configuration
// (ai/provider.go's WithProviderAlias) and its ChainClient fan-out.
package gateway

import (
	"context"
	"fmt"

	"github.com/stockmind/orchestrator/catalog"
	"github.com/stockmind/orchestrator/core"
	"github.com/stockmind/orchestrator/providers"
	"github.com/stockmind/orchestrator/providers/openailike"
)

// Backend names one upstream behind the gateway, analogous to the
// teacher's "openai.deepseek"-style alias.
type Backend struct {
	Name    string
	APIKey  string
	BaseURL string
}

// Config configures an Adapter. Each entry in Backends serves a disjoint
// subset of the bundled gateway-tagged catalog models, partitioned by
// Backend.Name matching the model's catalog entry via ModelBackend.
type Config struct {
	Backends []Backend
	// ModelBackend maps a gateway model name to the Backend.Name that
	// serves it. Models with no entry are skipped at construction.
	ModelBackend map[string]string
	Logger       core.Logger
}

// Adapter multiplexes ExecuteTask/HealthCheck/EstimateCost calls across
// several underlying OpenAI-protocol-compatible adapters by model name.
type Adapter struct {
	models   map[string]catalog.ModelSpec
	delegate map[string]*openailike.Adapter // model name -> owning backend client
	backends map[string]*openailike.Adapter // backend name -> client, for health aggregation
	logger   core.Logger
}

// New constructs a gateway Adapter from Config. Models from the bundled
// catalog tagged catalog.ProviderGateway are partitioned across
// cfg.Backends using cfg.ModelBackend.
func New(cfg Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestrator/providers")
	}

	all := catalog.DefaultModelsByProvider(catalog.ProviderGateway)
	backendClients := make(map[string]*openailike.Adapter, len(cfg.Backends))
	modelsByBackend := make(map[string]map[string]catalog.ModelSpec, len(cfg.Backends))
	for _, b := range cfg.Backends {
		modelsByBackend[b.Name] = make(map[string]catalog.ModelSpec)
	}

	models := make(map[string]catalog.ModelSpec)
	delegate := make(map[string]*openailike.Adapter)

	for name, spec := range all {
		backendName, ok := cfg.ModelBackend[name]
		if !ok {
			logger.Warn("Gateway model has no backend assignment, skipping", map[string]interface{}{"model": name})
			continue
		}
		if set, ok := modelsByBackend[backendName]; ok {
			set[name] = spec
			models[name] = spec
		}
	}

	for _, b := range cfg.Backends {
		client := openailike.New(openailike.Config{
			APIKey:   b.APIKey,
			BaseURL:  b.BaseURL,
			Models:   modelsByBackend[b.Name],
			Provider: catalog.ProviderGateway,
			Logger:   logger,
		})
		backendClients[b.Name] = client
		for name := range modelsByBackend[b.Name] {
			delegate[name] = client
		}
	}

	return &Adapter{
		models:   models,
		delegate: delegate,
		backends: backendClients,
		logger:   logger,
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
	client, ok := a.delegate[modelName]
	if !ok {
		return 0
	}
	return client.EstimateCost(modelName, estimatedTokens)
}

// HealthCheck reports healthy only if every backend behind a registered
// model is reachable. A single degraded backend makes the whole adapter
// unhealthy, so the catalog registry takes every gateway model out of
// rotation, not only that backend's models.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	if len(a.backends) == 0 {
		return false
	}
	for _, client := range a.backends {
		if !client.HealthCheck(ctx) {
			return false
		}
	}
	return true
}

func (a *Adapter) ExecuteTask(ctx context.Context, modelName, prompt string, spec providers.TaskSpec, opts providers.Options) (providers.TaskResult, error) {
	client, ok := a.delegate[modelName]
	if !ok {
		return providers.TaskResult{
			Success:      false,
			ErrorKind:    "validation_error",
			ErrorMessage: fmt.Sprintf("gateway has no backend for model %s", modelName),
		}, nil
	}
	return client.ExecuteTask(ctx, modelName, prompt, spec, opts)
}
