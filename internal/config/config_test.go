package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3072, cfg.LLM.EmbeddingDims)
	assert.Equal(t, 365, cfg.Retrieval.TemporalHorizonDays)
	assert.Equal(t, 5, cfg.Retrieval.VerifyConcurrency)
	assert.Equal(t, 60, cfg.RateLimits.RequestsPerMinute)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestStageModel(t *testing.T) {
	cfg := &LLMConfig{Model: "gpt-4o", ComplianceCheck: "gpt-4o-mini"}

	assert.Equal(t, "gpt-4o-mini", cfg.StageModel(cfg.ComplianceCheck))
	assert.Equal(t, "gpt-4o", cfg.StageModel(cfg.ClaimExtraction))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.LLM.APIKey = "sk-test"
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.LLM.APIKey = ""
	assert.Error(t, cfg.Validate())

	// Ollama does not need an API key.
	cfg = valid()
	cfg.LLM.Provider = "ollama"
	cfg.LLM.APIKey = ""
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.LLM.Provider = "anthropic"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.LLM.EmbeddingDims = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Retrieval.VerifyConcurrency = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("SENTINEL_TEST_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
llm:
  provider: openai
  api_key: ${SENTINEL_TEST_KEY}
  model: gpt-4o-mini
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset fields keep their defaults.
	assert.Equal(t, 365, cfg.Retrieval.TemporalHorizonDays)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInterpolateEnvVarsKeepsUnset(t *testing.T) {
	assert.Equal(t, "key: ${DEFINITELY_NOT_SET_12345}",
		interpolateEnvVars("key: ${DEFINITELY_NOT_SET_12345}"))
}

func TestGenerateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, GenerateSample(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "provider: openai")
}
