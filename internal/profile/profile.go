package profile

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is the configuration needed to start the bot process.
type Profile struct {
	// Telegram configuration
	TelegramToken string // Bot API token
	BotID         string // Identity of the persona this process serves

	// Database configuration
	DSN string // Postgres DSN, pgvector extension required

	// Unified LLM configuration (OpenAI-compatible protocol)
	LLMProvider string // openai, deepseek, siliconflow, ollama, ...
	LLMAPIKey   string
	LLMBaseURL  string // optional, has default per provider
	LLMModel    string
	LLMTimeout  int // request timeout in seconds

	// Embedding configuration
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int

	// Health/metrics server
	Addr string
	Port int

	Mode    string // "prod" or "dev" or "demo"
	Version string
}

// Provider default configurations for the chat LLM.
// Used when LLM_BASE_URL or LLM_MODEL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"ollama": {
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	if p.TelegramToken == "" {
		p.TelegramToken = getEnvOrDefault("STORYWEAVE_TELEGRAM_TOKEN", "")
	}
	if p.BotID == "" {
		p.BotID = getEnvOrDefault("STORYWEAVE_BOT_ID", "")
	}
	if p.DSN == "" {
		p.DSN = getEnvOrDefault("STORYWEAVE_DSN", "")
	}

	// Unified LLM configuration
	p.LLMProvider = getEnvOrDefault("STORYWEAVE_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("STORYWEAVE_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("STORYWEAVE_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("STORYWEAVE_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("STORYWEAVE_LLM_TIMEOUT_SECONDS", 120)

	if p.LLMProvider != "" {
		if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
			slog.Warn("unknown LLM provider, using default: openai", "provider", p.LLMProvider)
			p.LLMProvider = "openai"
		}
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}

	// Embedding configuration. The API key falls back to the LLM key so a
	// single-provider setup only needs one credential.
	p.EmbeddingProvider = getEnvOrDefault("STORYWEAVE_EMBEDDING_PROVIDER", p.LLMProvider)
	p.EmbeddingModel = getEnvOrDefault("STORYWEAVE_EMBEDDING_MODEL", "text-embedding-3-small")
	p.EmbeddingAPIKey = getEnvOrDefault("STORYWEAVE_EMBEDDING_API_KEY", p.LLMAPIKey)
	p.EmbeddingBaseURL = getEnvOrDefault("STORYWEAVE_EMBEDDING_BASE_URL", p.LLMBaseURL)
	p.EmbeddingDimensions = getEnvOrDefaultInt("STORYWEAVE_EMBEDDING_DIMENSIONS", 1536)
}

// Validate checks that every required credential and identifier is present.
// Failures here are fatal at startup, never per-request.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.BotID == "" {
		return errors.New("bot id is required (STORYWEAVE_BOT_ID)")
	}
	if p.DSN == "" {
		return errors.New("database DSN is required (STORYWEAVE_DSN)")
	}
	if p.TelegramToken == "" {
		return errors.New("telegram token is required (STORYWEAVE_TELEGRAM_TOKEN)")
	}
	if p.LLMProvider != "ollama" && p.LLMAPIKey == "" {
		return errors.New("LLM API key is required (STORYWEAVE_LLM_API_KEY)")
	}
	if p.EmbeddingProvider != "ollama" && p.EmbeddingAPIKey == "" {
		return errors.New("embedding API key is required (STORYWEAVE_EMBEDDING_API_KEY)")
	}
	if p.EmbeddingDimensions <= 0 {
		return errors.Errorf("embedding dimensions must be positive, got %d", p.EmbeddingDimensions)
	}

	return nil
}
