package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")

	configData := map[string]interface{}{
		"name":      "file-orchestrator",
		"namespace": "file-namespace",
		"orchestration": map[string]interface{}{
			"max_cost_per_session": 2.5,
			"max_concurrent_tasks": 20,
			"enable_caching":       false,
		},
		"logging": map[string]interface{}{
			"level":  "warn",
			"format": "text",
		},
	}
	data, err := json.MarshalIndent(configData, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configFile, data, 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(configFile))

	assert.Equal(t, "file-orchestrator", cfg.Name)
	assert.Equal(t, "file-namespace", cfg.Namespace)
	assert.Equal(t, 2.5, cfg.Orchestration.MaxCostPerSession)
	assert.Equal(t, 20, cfg.Orchestration.MaxConcurrentTasks)
	assert.False(t, cfg.Orchestration.EnableCaching)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadFromFileYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	yamlDoc := `
name: yaml-orchestrator
namespace: yaml-namespace
orchestration:
  max_cost_per_session: 3.5
  max_concurrent_tasks: 15
  enable_caching: false
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configFile, []byte(yamlDoc), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(configFile))

	assert.Equal(t, "yaml-orchestrator", cfg.Name)
	assert.Equal(t, "yaml-namespace", cfg.Namespace)
	assert.Equal(t, 3.5, cfg.Orchestration.MaxCostPerSession)
	assert.Equal(t, 15, cfg.Orchestration.MaxConcurrentTasks)
	assert.False(t, cfg.Orchestration.EnableCaching)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFileRejectsUnsupportedExtension(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.WriteFile(configFile, []byte("name = \"x\""), 0644))

	cfg := DefaultConfig()
	err := cfg.LoadFromFile(configFile)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
