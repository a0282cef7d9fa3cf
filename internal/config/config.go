package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"circles.db"` // empty keeps messages in memory
	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`

	// Generation service
	LLMProvider       string        `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey      string        `env:"GEMINI_API_KEY"`
	GeminiModel       string        `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash-latest"`
	OpenAIAPIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL"`
	OpenAIModel       string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"30s"`
	ContextSize       int           `env:"CONTEXT_SIZE" envDefault:"5"`

	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"https://talk-wise-circles.vercel.app"`
}

var AppConfig Config

// LoadConfig reads an optional .env file, then the process environment.
func LoadConfig() (*Config, error) {
	// A missing .env is fine, the environment may carry everything.
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required for provider %q", c.LLMProvider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required for provider %q", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.ContextSize <= 0 {
		return fmt.Errorf("CONTEXT_SIZE must be positive, got %d", c.ContextSize)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive, got %s", c.GenerationTimeout)
	}
	return nil
}

func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "DEBUG")
}
