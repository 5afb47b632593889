package telemetry

import (
	"context"

	"github.com/stockmind/orchestrator/core"
)

// FrameworkMetricsRegistry implements core.MetricsRegistry
// This enables all orchestrator components to emit metrics through telemetry
type FrameworkMetricsRegistry struct {
	logger *TelemetryLogger
}

// NewFrameworkMetricsRegistry creates a new framework metrics registry
func NewFrameworkMetricsRegistry(logger *TelemetryLogger) *FrameworkMetricsRegistry {
	return &FrameworkMetricsRegistry{
		logger: logger,
	}
}

// Counter implements core.MetricsRegistry
func (f *FrameworkMetricsRegistry) Counter(name string, labels ...string) {
	if f.logger != nil && f.logger.debug {
		f.logger.Debug("Framework metric emission", map[string]interface{}{
			"metric_name": name,
			"type":        "counter",
			"label_count": len(labels) / 2,
			"source":      "framework",
		})
	}

	Emit(name, 1.0, labels...)
}

// Gauge implements core.MetricsRegistry
func (f *FrameworkMetricsRegistry) Gauge(name string, value float64, labels ...string) {
	if f.logger != nil && f.logger.debug {
		f.logger.Debug("Framework metric emission", map[string]interface{}{
			"metric_name": name,
			"type":        "gauge",
			"value":       value,
			"label_count": len(labels) / 2,
			"source":      "framework",
		})
	}

	Emit(name, value, labels...)
}

// Histogram implements core.MetricsRegistry
func (f *FrameworkMetricsRegistry) Histogram(name string, value float64, labels ...string) {
	if f.logger != nil && f.logger.debug {
		f.logger.Debug("Framework metric emission", map[string]interface{}{
			"metric_name": name,
			"type":        "histogram",
			"value":       value,
			"label_count": len(labels) / 2,
			"source":      "framework",
		})
	}

	Emit(name, value, labels...)
}

// EmitWithContext implements core.MetricsRegistry
func (f *FrameworkMetricsRegistry) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	baggage := GetBaggage(ctx)

	if f.logger != nil && f.logger.debug {
		requestID := ""
		if baggage != nil {
			if id, ok := baggage["request_id"]; ok {
				requestID = id
			}
		}

		f.logger.Debug("Framework context-aware emission", map[string]interface{}{
			"metric_name": name,
			"value":       value,
			"has_baggage": len(baggage) > 0,
			"request_id":  requestID,
			"label_count": len(labels) / 2,
			"source":      "framework",
		})
	}

	EmitWithContext(ctx, name, value, labels...)
}

// GetBaggage implements core.MetricsRegistry
func (f *FrameworkMetricsRegistry) GetBaggage(ctx context.Context) map[string]string {
	return GetBaggage(ctx)
}

// EnableFrameworkIntegration registers the telemetry module with core.
// Must be called after telemetry initialization so catalog, providers,
// budget, store, routing, manager, collab, progress and lifecycle can
// all emit metrics through the same registry.
func EnableFrameworkIntegration(logger *TelemetryLogger) {
	registry := NewFrameworkMetricsRegistry(logger)

	core.SetMetricsRegistry(registry)

	if logger != nil {
		logger.Info("Framework integration enabled", map[string]interface{}{
			"integration": "core.MetricsRegistry",
			"impact":      "All orchestrator components can now emit metrics",
			"methods":     []string{"Counter", "Gauge", "Histogram", "EmitWithContext", "GetBaggage"},
		})
	}
}
