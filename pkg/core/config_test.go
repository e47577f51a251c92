package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AI_PROVIDER", "MODEL_ID", "MODEL_ID_GPT", "MODEL_ID_CLAUDE", "MODEL_ID_LOCAL",
		"MEMORY_PROVIDER", "MEMORY_MODEL_ID", "DATA_DIR", "STORE_PROVIDER",
		"MAX_CHARS", "API_CACHE_ENABLED", "API_CACHE_TTL_HOURS", "SEARCH_SWITCH",
		"RETENTION_DAYS", "CONSOLIDATION_THRESHOLD", "CONSOLIDATION_CHUNK",
		"TIMEOUT_AI_RESPONSE", "TIMEOUT_WEB_SEARCH", "TODAY_CONTEXT", "PERSONA",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "OLLAMA_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "sqlite", cfg.StoreProvider)
	assert.Equal(t, 300, cfg.MaxChars)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.False(t, cfg.SearchEnabled)
	assert.Equal(t, 365*24*time.Hour, cfg.Retention)
	assert.Equal(t, 16, cfg.ConsolidationThreshold)
	assert.Equal(t, 10, cfg.ConsolidationChunk)
	assert.Equal(t, 60*time.Second, cfg.ResponseTimeout)
}

func TestLoadConfigProviderModels(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("AI_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Model)
}

func TestLoadConfigModelIDOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MODEL_ID_GPT", "gpt-4o-mini")
	t.Setenv("MODEL_ID", "custom-model")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.Model)
}

func TestLoadConfigSeparateMemoryModel(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MEMORY_PROVIDER", "ollama")
	t.Setenv("MEMORY_MODEL_ID", "llama3.2:3b")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.MemoryProvider)
	assert.Equal(t, "llama3.2:3b", cfg.MemoryModel)
}

func TestLoadConfigBoolAndIntParsing(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("API_CACHE_ENABLED", "false")
	t.Setenv("SEARCH_SWITCH", "true")
	t.Setenv("RETENTION_DAYS", "30")
	t.Setenv("MAX_CHARS", "not-a-number")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.CacheEnabled)
	assert.True(t, cfg.SearchEnabled)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention)
	// Unparseable values fall back to the default.
	assert.Equal(t, 300, cfg.MaxChars)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{Provider: "carrier-pigeon"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsMissingKey(t *testing.T) {
	cfg := &Config{Provider: "anthropic"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsChunkOverThreshold(t *testing.T) {
	cfg := &Config{
		Provider:               "ollama",
		ConsolidationThreshold: 4,
		ConsolidationChunk:     8,
	}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateOllamaNeedsNoKey(t *testing.T) {
	cfg := &Config{Provider: "ollama"}
	assert.NoError(t, cfg.Validate())
}

func TestMemoryErrorFormat(t *testing.T) {
	err := NewMemoryError("Chat", ErrLLMOperation)
	assert.Equal(t, "mnemo: Chat: llm operation failed", err.Error())
	assert.ErrorIs(t, err, ErrLLMOperation)
	assert.Nil(t, NewMemoryError("Chat", nil))
}
