package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	models  map[string]ModelSpec
	healthy bool
}

func (f *fakeAdapter) SupportedModels() map[string]ModelSpec { return f.models }
func (f *fakeAdapter) HealthCheck(ctx context.Context) bool  { return f.healthy }

func TestDefaultModelsParse(t *testing.T) {
	models := DefaultModels()
	require.NotEmpty(t, models)

	byName := make(map[string]ModelSpec)
	for _, m := range models {
		byName[m.Name] = m
	}
	require.Contains(t, byName, "claude-opus-4")
	assert.Equal(t, ProviderAnthropic, byName["claude-opus-4"].Provider)
	assert.Greater(t, byName["claude-opus-4"].Capabilities[CapReasoning], 0.9)
}

func TestRegistryDuplicateModelFirstWins(t *testing.T) {
	r := NewRegistry()
	a1 := &fakeAdapter{healthy: true, models: map[string]ModelSpec{
		"shared": {Name: "shared", Provider: ProviderAnthropic, Capabilities: map[Capability]float64{CapReasoning: 0.9}},
	}}
	a2 := &fakeAdapter{healthy: true, models: map[string]ModelSpec{
		"shared": {Name: "shared", Provider: ProviderOpenAI, Capabilities: map[Capability]float64{CapReasoning: 0.1}},
	}}

	r.RegisterProvider(a1)
	r.RegisterProvider(a2)

	spec, ok := r.Get("shared")
	require.True(t, ok)
	assert.Equal(t, ProviderAnthropic, spec.Provider)
}

func TestRegistryGetAllAvailableFiltersUnhealthy(t *testing.T) {
	r := NewRegistry()
	healthy := &fakeAdapter{healthy: true, models: map[string]ModelSpec{
		"up": {Name: "up", Provider: ProviderMock},
	}}
	down := &fakeAdapter{healthy: false, models: map[string]ModelSpec{
		"down": {Name: "down", Provider: ProviderMock},
	}}
	r.RegisterProvider(healthy)
	r.RegisterProvider(down)
	r.RefreshHealth(context.Background())

	available := r.GetAllAvailable()
	assert.Contains(t, available, "up")
	assert.NotContains(t, available, "down")
}

func TestGetCapabilityScoreUnknownReturnsZero(t *testing.T) {
	r := NewRegistry()
	r.RegisterProvider(&fakeAdapter{healthy: true, models: map[string]ModelSpec{
		"m": {Name: "m", Capabilities: map[Capability]float64{CapReasoning: 0.8}},
	}})

	assert.Equal(t, 0.0, r.GetCapabilityScore("missing-model", CapReasoning))
	assert.Equal(t, 0.0, r.GetCapabilityScore("m", Capability("not_a_capability")))
	assert.Equal(t, 0.8, r.GetCapabilityScore("m", CapReasoning))
}

func TestNormalizeAlias(t *testing.T) {
	cases := map[string]string{
		"anthropic/claude-opus-4": "claude-opus-4",
		"gemini-api/gemini":       "gemini-2.5-pro",
		"opus":                    "claude-opus-4",
		"gpt4o-mini":              "gpt-4o-mini",
		"already-canonical":       "already-canonical",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAlias(in), "input %q", in)
	}
}
