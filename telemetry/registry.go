package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stockmind/orchestrator/core"
)

var (
	// globalRegistry holds the singleton Registry instance.
	// atomic.Value gives lock-free reads on the hot path (metric emission).
	// It is written once during Initialize() and read many times during Emit().
	globalRegistry atomic.Value // *Registry

	// initOnce ensures Initialize() can only succeed once.
	initOnce sync.Once

	// declaredMetrics stores metric declarations made before Initialize()
	// runs, solving the init()-ordering problem for packages like catalog
	// and budget that want to declare metrics from their own init().
	declaredMetrics sync.Map // map[string]ModuleConfig

	telemetryErrors  atomic.Int64
	telemetryDropped atomic.Int64
)

// ModuleConfig represents metric configuration for a module.
type ModuleConfig struct {
	Metrics []MetricDefinition
}

// MetricDefinition defines a metric's metadata.
type MetricDefinition struct {
	Name    string
	Type    string // counter, histogram, gauge, updowncounter
	Help    string
	Labels  []string
	Unit    string
	Buckets []float64
}

// Registry manages all telemetry components. It coordinates between the
// metrics instruments, circuit breaker and cardinality limiter and
// provides the package-level Emit/EmitWithContext API.
type Registry struct {
	config   Config
	provider *OTelProvider
	limiter  *CardinalityLimiter
	circuit  *TelemetryCircuitBreaker
	metrics  *MetricInstruments
	logger   *TelemetryLogger

	emitted   atomic.Int64
	startTime time.Time
	lastError atomic.Value

	errorLimiter *RateLimiter
}

// DeclareMetrics registers metric definitions for a module. Safe to call
// from init() before Initialize() runs; declarations are processed once
// the registry exists.
//
// Example:
//
//	func init() {
//	    telemetry.DeclareMetrics("catalog", telemetry.ModuleConfig{
//	        Metrics: []telemetry.MetricDefinition{
//	            {Name: "catalog.reloads", Type: "counter"},
//	        },
//	    })
//	}
func DeclareMetrics(module string, config ModuleConfig) {
	declaredMetrics.Store(module, config)
}

// Initialize activates the telemetry system with the given configuration.
// Call once at start-up before any metrics are emitted.
// Safe to call multiple times; only the first call takes effect.
func Initialize(config Config) error {
	var initErr error
	initOnce.Do(func() {
		logger := NewTelemetryLogger(config.ServiceName)

		logger.Info("Telemetry initialization starting", map[string]interface{}{
			"service_name":      config.ServiceName,
			"endpoint":          config.Endpoint,
			"cardinality_limit": config.CardinalityLimit,
			"provider":          config.Provider,
			"circuit_enabled":   config.CircuitBreaker.Enabled,
		})

		registry, err := newRegistry(config)
		if err != nil {
			initErr = err
			logger.Error("Telemetry initialization failed", map[string]interface{}{
				"error":    err.Error(),
				"endpoint": config.Endpoint,
				"action":   "check OTEL collector is running at endpoint",
				"impact":   "no metrics will be sent",
			})
			return
		}

		registry.logger = logger

		declaredCount := 0
		declaredMetrics.Range(func(key, value interface{}) bool {
			module := key.(string)
			moduleConfig := value.(ModuleConfig)
			registry.registerModule(module, moduleConfig)
			declaredCount++
			logger.Debug("Registered module metrics", map[string]interface{}{
				"module":       module,
				"metric_count": len(moduleConfig.Metrics),
			})
			return true
		})

		globalRegistry.Store(registry)

		logger.EnableMetrics()

		// Register telemetry with core so catalog, providers, budget, store,
		// routing, manager, collab, progress and lifecycle can all emit
		// metrics through core.GetGlobalMetricsRegistry() without importing
		// telemetry directly.
		EnableFrameworkIntegration(logger)

		logger.Info("Telemetry system initialized successfully", map[string]interface{}{
			"declared_modules":     declaredCount,
			"circuit_enabled":      registry.circuit != nil,
			"limiter_enabled":      registry.limiter != nil,
			"provider_type":        "OpenTelemetry",
			"initialization_ms":    time.Since(registry.startTime).Milliseconds(),
			"framework_integrated": true,
		})
	})
	return initErr
}

func newRegistry(config Config) (*Registry, error) {
	startTime := time.Now()

	if config.Endpoint == "" {
		config.Endpoint = "localhost:4318"
	}
	if config.ServiceName == "" {
		config.ServiceName = "orchestrator"
	}
	if config.CardinalityLimit == 0 {
		config.CardinalityLimit = 10000
	}

	provider, err := NewOTelProvider(config.ServiceName, config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTel provider: %w", err)
	}

	limits := config.CardinalityLimits
	if limits == nil {
		limits = map[string]int{
			"session_id": 10000,
			"model_id":   200,
			"provider":   50,
			"error_type": 50,
			"stage":      20,
		}
	}

	r := &Registry{
		config:       config,
		provider:     provider,
		limiter:      NewCardinalityLimiter(limits),
		circuit:      NewTelemetryCircuitBreaker(config.CircuitBreaker),
		metrics:      provider.metrics,
		startTime:    startTime,
		errorLimiter: NewRateLimiter(1 * time.Second),
	}

	r.lastError.Store("")

	return r, nil
}

func (r *Registry) registerModule(_ string, config ModuleConfig) {
	for _, metric := range config.Metrics {
		ctx := context.Background()
		switch metric.Type {
		case "gauge":
			// Gauges are registered lazily on first observation.
		case "counter":
			_ = r.metrics.RecordCounter(ctx, metric.Name, 0)
		case "histogram":
			_ = r.metrics.RecordHistogram(ctx, metric.Name, 0)
		}
	}
}

func (r *Registry) emit(name string, value float64, labels map[string]string) error {
	if r.circuit != nil && !r.circuit.Allow() {
		telemetryDropped.Add(1)
		return fmt.Errorf("telemetry circuit breaker open")
	}

	if r.limiter != nil {
		for key, val := range labels {
			limited := r.limiter.CheckAndLimit(name, key, val)
			if limited != val {
				labels[key] = limited
			}
		}
	}

	if r.provider != nil {
		r.provider.RecordMetric(name, value, labels)
		r.emitted.Add(1)

		if r.circuit != nil {
			r.circuit.RecordSuccess()
		}
	}

	return nil
}

// Emit is the simple, thread-safe entry point for recording a metric. It
// silently no-ops when telemetry has not been initialized.
func Emit(name string, value float64, labels ...string) {
	registry := globalRegistry.Load()
	if registry == nil {
		return
	}

	r := registry.(*Registry)
	if err := r.emit(name, value, parseLabels(labels...)); err != nil {
		telemetryErrors.Add(1)
		r.lastError.Store(err.Error())

		if r.logger != nil && r.errorLimiter != nil && r.errorLimiter.Allow() {
			r.logger.Error("Failed to emit metric", map[string]interface{}{
				"metric": name,
				"value":  value,
				"error":  err.Error(),
			})
		}

		if r.circuit != nil {
			r.circuit.RecordFailure()
		}
	}
}

// EmitWithContext records a metric, automatically merging in any baggage
// labels carried on ctx (session_id, task_id, request_id).
func EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	allLabels := appendBaggageToLabels(ctx, labels)
	defer returnLabelSlice(allLabels)

	if provider := FromContext(ctx); provider != nil {
		provider.RecordMetric(name, value, parseLabels(allLabels...))
		return
	}
	Emit(name, value, allLabels...)
}

// FromContext retrieves a request-scoped telemetry provider from ctx, if
// one was attached. Returns nil to fall back to the global registry.
func FromContext(ctx context.Context) *OTelProvider {
	return nil
}

func parseLabels(labels ...string) map[string]string {
	m := make(map[string]string)
	for i := 0; i < len(labels)-1; i += 2 {
		m[labels[i]] = labels[i+1]
	}
	return m
}

// Shutdown gracefully shuts down the telemetry system, flushing any
// buffered spans and metrics and unregistering from core.
func Shutdown(ctx context.Context) error {
	registry := globalRegistry.Load()
	if registry == nil {
		return nil
	}

	r := registry.(*Registry)

	if r.logger != nil {
		r.logger.Info("Shutting down telemetry system", map[string]interface{}{
			"total_emitted": r.emitted.Load(),
			"uptime_ms":     time.Since(r.startTime).Milliseconds(),
		})
	}

	if r.limiter != nil {
		r.limiter.Stop()
		if r.logger != nil {
			r.logger.Debug("Cardinality limiter stopped", nil)
		}
	}

	if r.provider != nil {
		if err := r.provider.Shutdown(ctx); err != nil {
			if r.logger != nil {
				r.logger.Error("Error during provider shutdown", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return err
		}
		if r.logger != nil {
			r.logger.Info("Telemetry provider shut down successfully", nil)
		}
	}

	core.SetMetricsRegistry(nil)
	globalRegistry.Store(nil)

	if r.logger != nil {
		r.logger.Info("Telemetry system shut down complete", map[string]interface{}{
			"framework_unregistered": true,
			"registry_cleared":       true,
		})
	}

	return nil
}

// GetRegistry returns the current registry, or nil if telemetry has not
// been initialized. Exposed mainly for tests and resilience.factory.
func GetRegistry() *Registry {
	r := globalRegistry.Load()
	if r == nil {
		return nil
	}
	return r.(*Registry)
}

// GetTelemetryProvider returns the OTelProvider as a core.Telemetry, for
// injecting span creation into the orchestrator's root package.
//
// Example:
//
//	telemetry.Initialize(cfg)
//	if provider := telemetry.GetTelemetryProvider(); provider != nil {
//	    orch.SetTelemetry(provider)
//	}
func GetTelemetryProvider() core.Telemetry {
	r := globalRegistry.Load()
	if r == nil {
		return nil
	}
	registry := r.(*Registry)
	if registry.provider == nil {
		return nil
	}
	return registry.provider
}
