package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"docqa/internal/retry"
)

// GenAI calls Gemini through the Google Gen AI SDK.
type GenAI struct {
	client *genai.Client
	opts   Options
}

// NewGenAI creates a Gemini client.
func NewGenAI(ctx context.Context, opts Options) (*GenAI, error) {
	cc := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAI{client: client, opts: opts}, nil
}

// Name returns genai:model.
func (g *GenAI) Name() string { return "genai:" + g.opts.Model }

// Complete generates a reply to prompt.
func (g *GenAI) Complete(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(g.opts.MaxNewTokens),
	}
	if g.opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(g.opts.Temperature))
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.opts.Model, genai.Text(prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &retry.StatusError{Code: apiErr.Code, Err: err}
		}
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
