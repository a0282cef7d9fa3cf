package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"talkwise.app/circles/internal/config"
)

// ReplyGenerator is a Generator holding a client that must be released.
type ReplyGenerator interface {
	Generator
	Close() error
}

// NewGenerator builds the generation client for the configured provider.
func NewGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ReplyGenerator, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		gen, err := NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLMProvider)
	}
}
