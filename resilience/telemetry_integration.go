package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/stockmind/orchestrator/telemetry"
)

// TelemetryMetrics implements MetricsCollector using the telemetry package,
// letting circuit breakers guarding provider and gateway calls (C2)
// report state into the same OTel pipeline as everything else.
type TelemetryMetrics struct{}

// NewTelemetryMetrics creates a metrics collector backed by telemetry.Emit.
func NewTelemetryMetrics() *TelemetryMetrics {
	return &TelemetryMetrics{}
}

func (t *TelemetryMetrics) RecordSuccess(name string) {
	telemetry.Counter("circuit_breaker.calls", "name", name, "state", "success")
}

func (t *TelemetryMetrics) RecordFailure(name string, errorType string) {
	telemetry.Counter("circuit_breaker.calls", "name", name, "state", "failure")
	telemetry.Counter("circuit_breaker.failures", "name", name, "error_type", errorType)
}

func (t *TelemetryMetrics) RecordStateChange(name string, from, to string) {
	telemetry.Counter("circuit_breaker.state_changes",
		"name", name,
		"from_state", from,
		"to_state", to)

	stateValue := 0.0
	switch to {
	case "half-open":
		stateValue = 0.5
	case "open":
		stateValue = 1.0
	}
	telemetry.Gauge("circuit_breaker.current_state", stateValue, "name", name)
}

func (t *TelemetryMetrics) RecordRejection(name string) {
	telemetry.Counter("circuit_breaker.rejected", "name", name)
}

// ExecuteWithTelemetry wraps circuit breaker execution with call and
// duration metrics, for call sites that don't already go through a
// MetricsCollector-configured breaker.
func ExecuteWithTelemetry(cb *CircuitBreaker, ctx context.Context, fn func() error) error {
	start := time.Now()

	telemetry.Emit("circuit_breaker.calls", 1,
		"name", cb.config.Name,
		"state", cb.GetState())

	err := cb.Execute(ctx, fn)

	duration := float64(time.Since(start).Milliseconds())
	status := "success"
	if err != nil {
		status = "failure"
	}

	telemetry.Histogram("circuit_breaker.duration_ms", duration,
		"name", cb.config.Name,
		"status", status)

	return err
}

// RetryWithTelemetry performs a retry loop with attempt and outcome
// metrics, for call sites that want visibility into provider fallback
// retries (C6) without wiring a MetricsCollector.
func RetryWithTelemetry(ctx context.Context, operation string, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	maxAttempts := config.MaxAttempts
	start := time.Now()
	delay := config.InitialDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		telemetry.Counter("retry.attempts",
			"operation", operation,
			"attempt_number", fmt.Sprintf("%d", attempt))

		err := fn()

		if err == nil {
			telemetry.Counter("retry.success",
				"operation", operation,
				"final_attempt", fmt.Sprintf("%d", attempt))

			duration := float64(time.Since(start).Milliseconds())
			telemetry.Histogram("retry.duration_ms", duration,
				"operation", operation,
				"status", "success")

			return nil
		}

		if attempt == maxAttempts {
			telemetry.Counter("retry.failures",
				"operation", operation,
				"error_type", fmt.Sprintf("%T", err))

			duration := float64(time.Since(start).Milliseconds())
			telemetry.Histogram("retry.duration_ms", duration,
				"operation", operation,
				"status", "failure")

			return err
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
		}
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}

		telemetry.Histogram("retry.backoff_ms", float64(delay.Milliseconds()),
			"operation", operation,
			"strategy", "exponential")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("retry exhausted after %d attempts", maxAttempts)
}
