// Package catalog implements the model catalog and capability registry
// (component C1): a read-only, provider-agnostic map from model name to
// ModelSpec, aggregated across whichever provider adapters register
// themselves at startup.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stockmind/orchestrator/core"
)

// Provider identifies which backend a model is reached through.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGateway   Provider = "gateway"
	ProviderMock      Provider = "mock"
)

// ModelKind buckets a model by its primary strength, used for timeout
// policy (providers) and pool routing (routing).
type ModelKind string

const (
	KindReasoning  ModelKind = "reasoning"
	KindSpeed      ModelKind = "speed"
	KindGeneral    ModelKind = "general"
	KindPremium    ModelKind = "premium"
	KindCoder      ModelKind = "coder"
	KindThinking   ModelKind = "thinking"
	KindAgent      ModelKind = "agent"
	KindMultimodal ModelKind = "multimodal"
	KindChinese    ModelKind = "chinese"
	KindBalanced   ModelKind = "balanced"
)

// Capability is a named axis a model can be scored on, restricted to the
// recognized set below. GetCapabilityScore returns 0 for anything else.
type Capability string

const (
	CapReasoning          Capability = "reasoning"
	CapMultimodal         Capability = "multimodal"
	CapLongContext        Capability = "long_context"
	CapChinese            Capability = "chinese"
	CapFinancialAnalysis  Capability = "financial_analysis"
	CapTechnicalAnalysis  Capability = "technical_analysis"
	CapTimeSeries         Capability = "time_series"
	CapCodeGeneration     Capability = "code_generation"
	CapReliability        Capability = "reliability"
	CapCostEfficiency     Capability = "cost_efficiency"
	CapSpeed              Capability = "speed"
)

var recognizedCapabilities = map[Capability]bool{
	CapReasoning: true, CapMultimodal: true, CapLongContext: true,
	CapChinese: true, CapFinancialAnalysis: true, CapTechnicalAnalysis: true,
	CapTimeSeries: true, CapCodeGeneration: true, CapReliability: true,
	CapCostEfficiency: true, CapSpeed: true,
}

// IsRecognizedCapability reports whether cap is one of the eleven axes
// spec'd for routing and scoring.
func IsRecognizedCapability(cap Capability) bool {
	return recognizedCapabilities[cap]
}

// ModelSpec describes a single model, constant for the process lifetime
// once loaded.
type ModelSpec struct {
	Name               string                 `yaml:"name" json:"name"`
	Provider           Provider               `yaml:"provider" json:"provider"`
	Kind               ModelKind              `yaml:"kind" json:"kind"`
	CostPer1KTokens    float64                `yaml:"cost_per_1k_tokens" json:"cost_per_1k_tokens"`
	MaxOutputTokens    int                    `yaml:"max_output_tokens" json:"max_output_tokens"`
	ContextWindow      int                    `yaml:"context_window" json:"context_window"`
	SupportsStreaming  bool                   `yaml:"supports_streaming" json:"supports_streaming"`
	Capabilities       map[Capability]float64 `yaml:"capabilities" json:"capabilities"`
}

// Adapter is the narrow surface the catalog needs from a provider: which
// models it can serve, and whether it is currently healthy. Any
// providers.Adapter satisfies this structurally, with no import cycle.
type Adapter interface {
	SupportedModels() map[string]ModelSpec
	HealthCheck(ctx context.Context) bool
}

// Registry aggregates ModelSpecs across every registered Adapter and
// caches each adapter's last health check result so GetAllAvailable
// never blocks on a network round trip.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]ModelSpec
	owners   map[string]Adapter
	adapters []Adapter
	healthy  map[Adapter]bool
	logger   core.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry creates an empty registry. Call RegisterProvider for each
// configured adapter before routing any tasks.
func NewRegistry() *Registry {
	return &Registry{
		models:  make(map[string]ModelSpec),
		owners:  make(map[string]Adapter),
		healthy: make(map[Adapter]bool),
		logger:  &core.NoOpLogger{},
		stopCh:  make(chan struct{}),
	}
}

// SetLogger configures the registry's logger, tagged "orchestrator/catalog".
func (r *Registry) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		r.logger = cal.WithComponent("orchestrator/catalog")
	} else {
		r.logger = logger
	}
}

// RegisterProvider merges an adapter's supported models into the
// catalog. On a duplicate model_name, the first registration wins and
// the duplicate is logged and dropped, per §4.1.
func (r *Registry) RegisterProvider(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters = append(r.adapters, adapter)
	r.healthy[adapter] = true // optimistic until the first health check

	for name, spec := range adapter.SupportedModels() {
		if _, exists := r.models[name]; exists {
			r.logger.Warn("Duplicate model registration dropped", map[string]interface{}{
				"model":    name,
				"provider": string(spec.Provider),
			})
			continue
		}
		r.models[name] = spec
		r.owners[name] = adapter
	}
}

// GetAllAvailable returns every model whose owning adapter passed its
// last health check.
func (r *Registry) GetAllAvailable() map[string]ModelSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ModelSpec, len(r.models))
	for name, spec := range r.models {
		owner := r.owners[name]
		if r.healthy[owner] {
			out[name] = spec
		}
	}
	return out
}

// Get returns a single model spec regardless of current health, for
// callers (e.g. manager's fallback chain) that already know the model
// is a candidate and just need its cost/capability data.
func (r *Registry) Get(modelName string) (ModelSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.models[modelName]
	return spec, ok
}

// GetCapabilityScore returns the model's score for capability, or 0 if
// the model or capability is unknown.
func (r *Registry) GetCapabilityScore(modelName string, capability Capability) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.models[modelName]
	if !ok || !recognizedCapabilities[capability] {
		return 0
	}
	return spec.Capabilities[capability]
}

// RefreshHealth runs HealthCheck against every registered adapter and
// updates the cached health map GetAllAvailable reads from.
func (r *Registry) RefreshHealth(ctx context.Context) {
	r.mu.RLock()
	adapters := make([]Adapter, len(r.adapters))
	copy(adapters, r.adapters)
	r.mu.RUnlock()

	results := make(map[Adapter]bool, len(adapters))
	for _, a := range adapters {
		results[a] = a.HealthCheck(ctx)
	}

	r.mu.Lock()
	for a, ok := range results {
		if !ok && r.healthy[a] {
			r.logger.Warn("Provider adapter failed health check", map[string]interface{}{
				"adapter": fmt.Sprintf("%T", a),
			})
		}
		r.healthy[a] = ok
	}
	r.mu.Unlock()
}

// StartHealthChecks runs RefreshHealth on interval until ctx is done or
// Close is called, grounded on the teacher's background cleanup
// goroutine idiom (ui/session_redis.go's startCleanupRoutine).
func (r *Registry) StartHealthChecks(ctx context.Context, interval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.RefreshHealth(ctx)
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Close stops any running health-check goroutine.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// NormalizeAlias resolves a model reference to the canonical catalog
// name: "provider/name" becomes "name" (also handling the
// "gemini-api/*"-style aliases flagged in the Open Questions, since
// those are just another provider-prefixed form), then a short table of
// common short aliases is applied. Manager and providers both call this
// single implementation so the decision lives in one place.
func NormalizeAlias(name string) string {
	name = strings.TrimSpace(name)
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	if canonical, ok := shortAliases[name]; ok {
		return canonical
	}
	return name
}

var shortAliases = map[string]string{
	"claude":      "claude-opus-4",
	"opus":        "claude-opus-4",
	"sonnet":      "claude-sonnet-4",
	"gpt":         "gpt-4o",
	"gpt4":        "gpt-4o",
	"gpt4o":       "gpt-4o",
	"gpt4o-mini":  "gpt-4o-mini",
	"gemini":      "gemini-2.5-pro",
	"qwen":        "qwen-max",
	"deepseek":    "deepseek-chat",
	"kimi":        "kimi-k2",
}

// LoadFromYAML parses a model list document (the same shape as the
// embedded default catalog) into ModelSpecs. Used both for the built-in
// catalog and for operator-supplied override files
// (docs/catalog.yaml-style), per SPEC_FULL §3.2.
func LoadFromYAML(data []byte) ([]ModelSpec, error) {
	var doc struct {
		Models []ModelSpec `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing model catalog YAML: %w", err)
	}
	return doc.Models, nil
}
