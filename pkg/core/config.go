package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for an Engine.
//
// Most deployments set a handful of environment variables and use
// LoadConfigFromEnv; the struct exists so embedders and tests can build
// configurations programmatically.
type Config struct {
	// Provider selects the chat model provider: openai, anthropic,
	// gemini or ollama.
	Provider string `json:"provider"`

	// Model is the chat model id. Empty picks the provider default.
	Model string `json:"model"`

	// MemoryProvider and MemoryModel select the summarization model used
	// by consolidation, configured independently so a small local model
	// can do the background work.
	MemoryProvider string `json:"memory_provider"`
	MemoryModel    string `json:"memory_model"`

	// DataDir is where history, cache, profile and the memory database
	// live. Defaults to "./data".
	DataDir string `json:"data_dir"`

	// StoreProvider selects the vector backend: sqlite (default) or
	// chromem (in-memory).
	StoreProvider string `json:"store_provider"`

	// Collection names the memory collection. Defaults to "memories".
	Collection string `json:"collection"`

	// MaxChars, when positive, asks the model to keep replies short.
	MaxChars int `json:"max_chars"`

	// CacheEnabled turns the response cache on.
	CacheEnabled bool `json:"cache_enabled"`

	// CacheTTL is the response cache entry lifetime.
	CacheTTL time.Duration `json:"cache_ttl"`

	// SearchEnabled is the user-facing web search switch. The directive
	// only reaches the prompt when the provider supports it.
	SearchEnabled bool `json:"search_enabled"`

	// Retention is how long memories are kept before pruning.
	Retention time.Duration `json:"retention"`

	// ConsolidationThreshold and ConsolidationChunk tune the history
	// consolidation pass.
	ConsolidationThreshold int `json:"consolidation_threshold"`
	ConsolidationChunk     int `json:"consolidation_chunk"`

	// ResponseTimeout bounds a chat model call; SearchTimeout bounds a
	// web search round trip.
	ResponseTimeout time.Duration `json:"response_timeout"`
	SearchTimeout   time.Duration `json:"search_timeout"`

	// TodayContext is free text injected into every prompt (optional).
	TodayContext string `json:"today_context"`

	// Persona overrides the default companion persona text (optional).
	Persona string `json:"persona"`

	// Workers sizes the background pool.
	Workers int `json:"workers"`

	// API credentials and endpoints.
	OpenAIKey    string `json:"-"`
	AnthropicKey string `json:"-"`
	GeminiKey    string `json:"-"`
	OllamaURL    string `json:"ollama_url"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// A .env file is looked up from the working directory upward and loaded
// first, so the variables can live next to the application. Every value
// has a default; only the API key of the chosen provider is mandatory.
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine, err := core.New(config)
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("AI_PROVIDER", "openai")

	cfg := &Config{
		Provider:       provider,
		Model:          modelForProvider(provider),
		MemoryProvider: getEnvOrDefault("MEMORY_PROVIDER", provider),
		MemoryModel:    os.Getenv("MEMORY_MODEL_ID"),
		DataDir:        getEnvOrDefault("DATA_DIR", "./data"),
		StoreProvider:  getEnvOrDefault("STORE_PROVIDER", "sqlite"),
		Collection:     getEnvOrDefault("STORE_COLLECTION", "memories"),
		MaxChars:       getEnvInt("MAX_CHARS", 300),
		CacheEnabled:   getEnvBool("API_CACHE_ENABLED", true),
		CacheTTL:       time.Duration(getEnvInt("API_CACHE_TTL_HOURS", 24)) * time.Hour,
		SearchEnabled:  getEnvBool("SEARCH_SWITCH", false),
		Retention:      time.Duration(getEnvInt("RETENTION_DAYS", 365)) * 24 * time.Hour,

		ConsolidationThreshold: getEnvInt("CONSOLIDATION_THRESHOLD", 16),
		ConsolidationChunk:     getEnvInt("CONSOLIDATION_CHUNK", 10),

		ResponseTimeout: time.Duration(getEnvInt("TIMEOUT_AI_RESPONSE", 60)) * time.Second,
		SearchTimeout:   time.Duration(getEnvInt("TIMEOUT_WEB_SEARCH", 30)) * time.Second,

		TodayContext: os.Getenv("TODAY_CONTEXT"),
		Persona:      os.Getenv("PERSONA"),
		Workers:      getEnvInt("WORKER_POOL_SIZE", 3),

		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiKey:    os.Getenv("GEMINI_API_KEY"),
		OllamaURL:    getEnvOrDefault("OLLAMA_URL", "http://localhost:11434/v1"),
	}
	return cfg, cfg.Validate()
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", envPath, err)
	}
	return LoadConfigFromEnv()
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "anthropic", "gemini", "ollama":
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	switch c.StoreProvider {
	case "", "sqlite", "chromem":
	default:
		return fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, c.StoreProvider)
	}
	if c.ConsolidationChunk > 0 && c.ConsolidationThreshold > 0 &&
		c.ConsolidationChunk > c.ConsolidationThreshold {
		return fmt.Errorf("%w: consolidation chunk %d exceeds threshold %d",
			ErrInvalidConfig, c.ConsolidationChunk, c.ConsolidationThreshold)
	}
	if err := c.requireKey(c.Provider); err != nil {
		return err
	}
	if c.MemoryProvider != c.Provider {
		if err := c.requireKey(c.MemoryProvider); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) requireKey(provider string) error {
	switch provider {
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider openai", ErrInvalidConfig)
		}
	case "anthropic":
		if c.AnthropicKey == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY is required for provider anthropic", ErrInvalidConfig)
		}
	case "gemini":
		if c.GeminiKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for provider gemini", ErrInvalidConfig)
		}
	}
	return nil
}

// modelForProvider resolves the chat model id: MODEL_ID wins outright,
// then the provider-specific variable, then the provider default.
func modelForProvider(provider string) string {
	if m := os.Getenv("MODEL_ID"); m != "" {
		return m
	}
	switch provider {
	case "openai":
		return getEnvOrDefault("MODEL_ID_GPT", "gpt-4o")
	case "anthropic":
		return getEnvOrDefault("MODEL_ID_CLAUDE", "claude-sonnet-4-5")
	case "ollama":
		return getEnvOrDefault("MODEL_ID_LOCAL", "llama3.2-vision:11b")
	case "gemini":
		return "gemini-2.5-flash"
	}
	return ""
}

// FindEnvFile searches for a .env file starting at the working directory
// and walking upward. Returns the path and whether one was found.
func FindEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
