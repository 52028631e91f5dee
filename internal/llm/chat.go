package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"docqa/internal/retry"
)

// Chat calls an OpenAI-compatible chat completions endpoint. The Hugging
// Face router speaks the same protocol, so both providers share it.
type Chat struct {
	provider string
	api      *goopenai.Client
	opts     Options
}

// NewChat creates a chat completions client for provider.
func NewChat(provider string, opts Options) *Chat {
	apiCfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		apiCfg.BaseURL = opts.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	return &Chat{provider: provider, api: goopenai.NewClientWithConfig(apiCfg), opts: opts}
}

// Name returns provider:model.
func (c *Chat) Name() string { return c.provider + ":" + c.opts.Model }

// Complete sends prompt as a single user message.
func (c *Chat) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.opts.MaxNewTokens,
		Temperature: float32(c.opts.Temperature),
	})
	if err != nil {
		return "", classifyChat(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func classifyChat(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &retry.StatusError{Code: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &retry.StatusError{Code: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}
