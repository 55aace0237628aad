package engine

import (
	"context"
	"fmt"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// DetectConfig selects and configures a backend.
type DetectConfig struct {
	Provider string // gemini, ollama or openrouter
	BaseURL  string
	APIKey   string
	Timeout  time.Duration

	// EmbedBaseURL is the Ollama server used for embeddings when the
	// generation provider cannot embed.
	EmbedBaseURL string
}

// Detect builds the Engine named by cfg.Provider.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiEngine(ctx, cfg.APIKey)
	case "ollama":
		base := cfg.BaseURL
		if base == "" {
			base = defaultOllamaURL
		}
		return NewOllamaEngine(base, cfg.Timeout), nil
	case "openrouter":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openrouter: API key is required")
		}
		embedURL := cfg.EmbedBaseURL
		if embedURL == "" {
			embedURL = defaultOllamaURL
		}
		return NewOpenRouterEngine(cfg.APIKey, cfg.BaseURL, NewOllamaEngine(embedURL, cfg.Timeout)), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
