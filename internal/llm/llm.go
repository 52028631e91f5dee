// Package llm talks to hosted language models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"docqa/internal/config"
	"docqa/internal/domain"
)

// ErrEmptyResponse is returned when a model answers with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Options are the generation parameters shared by every backend.
type Options struct {
	BaseURL      string
	APIKey       string
	Model        string
	MaxNewTokens int
	Temperature  float64
	Timeout      time.Duration
}

// New builds the backend selected by cfg and wraps it in a rate limiter
// with bounded retries.
func New(ctx context.Context, cfg config.LLMConfig) (domain.LLM, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	opts := Options{
		BaseURL:      cfg.BaseURL,
		APIKey:       key,
		Model:        cfg.Model,
		MaxNewTokens: cfg.MaxNewTokens,
		Temperature:  cfg.Temperature,
		Timeout:      config.Duration(cfg.TimeoutSecs),
	}

	var (
		backend domain.LLM
		err     error
	)
	switch cfg.Type {
	case "huggingface", "openai":
		backend = NewChat(cfg.Type, opts)
	case "anthropic":
		backend = NewAnthropic(opts)
	case "genai":
		backend, err = NewGenAI(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown llm type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewLimited(backend, cfg.RequestsPerMinute, cfg.Retries()), nil
}
