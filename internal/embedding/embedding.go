// Package embedding selects the text embedder configured for the index.
package embedding

import (
	"context"
	"fmt"

	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding/genai"
	"docqa/internal/embedding/huggingface"
	"docqa/internal/embedding/openai"
	"docqa/internal/embedding/tfidf"
)

// New builds the embedder named by cfg.Embedder.Type. maxRetries bounds the
// retries of hosted embedders.
func New(ctx context.Context, cfg config.EmbedderConfig, maxRetries int) (domain.Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    config.Duration(cfg.OpenAI.TimeoutSecs),
			BatchSize:  cfg.OpenAI.BatchSize,
			MaxRetries: maxRetries,
		})
	case "huggingface":
		if cfg.HuggingFace == nil {
			return nil, fmt.Errorf("huggingface embedder config missing")
		}
		return huggingface.NewClient(huggingface.Config{
			BaseURL:    cfg.HuggingFace.BaseURL,
			APIKeyEnv:  cfg.HuggingFace.APIKeyEnv,
			Model:      cfg.HuggingFace.Model,
			Timeout:    config.Duration(cfg.HuggingFace.TimeoutSecs),
			MaxRetries: maxRetries,
		}), nil
	case "genai":
		if cfg.GenAI == nil {
			return nil, fmt.Errorf("genai embedder config missing")
		}
		return genai.NewEmbedder(ctx, genai.Config{
			APIKeyEnv: cfg.GenAI.APIKeyEnv,
			Model:     cfg.GenAI.Model,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}
