package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
	"docqa/internal/retry"
)

func TestChat_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Paris.  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewChat("huggingface", Options{
		BaseURL: srv.URL, APIKey: "hf_test", Model: "meta-llama/Meta-Llama-3-8B-Instruct",
		MaxNewTokens: 1000, Temperature: 0.5, Timeout: 5 * time.Second,
	})
	assert.Equal(t, "huggingface:meta-llama/Meta-Llama-3-8B-Instruct", c.Name())

	out, err := c.Complete(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", out)
	assert.Equal(t, "meta-llama/Meta-Llama-3-8B-Instruct", got["model"])
	assert.EqualValues(t, 1000, got["max_tokens"])
	assert.InDelta(t, 0.5, got["temperature"], 1e-6)
}

func TestChat_StatusIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"model loading","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := NewChat("openai", Options{BaseURL: srv.URL, APIKey: "k", Model: "m", Timeout: time.Second})
	_, err := c.Complete(context.Background(), "hi")
	var se *retry.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.True(t, retry.Retryable(err))
}

func TestChat_EmptyChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"   "}}]}`))
	}))
	defer srv.Close()

	c := NewChat("openai", Options{BaseURL: srv.URL, APIKey: "k", Model: "m", Timeout: time.Second})
	_, err := c.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropic_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"The answer "},{"type":"text","text":"is 42."}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer srv.Close()

	a := NewAnthropic(Options{BaseURL: srv.URL, APIKey: "sk-ant", Model: "claude-3-5-haiku-latest", MaxNewTokens: 256, Temperature: 0.5})
	out, err := a.Complete(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", out)
	assert.Equal(t, "claude-3-5-haiku-latest", got["model"])
	assert.EqualValues(t, 256, got["max_tokens"])
}

func TestAnthropic_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	a := NewAnthropic(Options{BaseURL: srv.URL, APIKey: "k", Model: "m", MaxNewTokens: 16})
	_, err := a.Complete(context.Background(), "q")
	var se *retry.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
}

func TestGenAI_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.0-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Gemini says hi"}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGenAI(context.Background(), Options{BaseURL: srv.URL, APIKey: "k", Model: "gemini-2.0-flash", MaxNewTokens: 64, Temperature: 0.5})
	require.NoError(t, err)
	out, err := g.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Gemini says hi", out)
}

type scriptedLLM struct {
	calls atomic.Int32
	errs  []error
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	return "ok:" + prompt, nil
}

func TestLimited_RetriesTransientErrors(t *testing.T) {
	next := &scriptedLLM{errs: []error{&retry.StatusError{Code: http.StatusBadGateway}}}
	l := NewLimited(next, 0, 2)
	assert.Equal(t, "scripted", l.Name())

	out, err := l.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok:p", out)
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestLimited_DoesNotRetryClientErrors(t *testing.T) {
	next := &scriptedLLM{errs: []error{&retry.StatusError{Code: http.StatusUnauthorized, Err: errors.New("bad token")}}}
	l := NewLimited(next, 0, 3)

	_, err := l.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.EqualValues(t, 1, next.calls.Load())
}

func TestLimited_EmptyResponseIsFinal(t *testing.T) {
	next := &scriptedLLM{errs: []error{ErrEmptyResponse}}
	l := NewLimited(next, 0, 3)

	_, err := l.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.EqualValues(t, 1, next.calls.Load())
}

func TestLimited_WaitHonoursContext(t *testing.T) {
	next := &scriptedLLM{}
	l := NewLimited(next, 1, 0)
	_, err := l.Complete(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Complete(ctx, "second")
	require.Error(t, err)
	assert.EqualValues(t, 1, next.calls.Load())
}

func TestNew_MissingKey(t *testing.T) {
	t.Setenv("DOCQA_TEST_MISSING_KEY", "")
	_, err := New(context.Background(), config.LLMConfig{Type: "openai", APIKeyEnv: "DOCQA_TEST_MISSING_KEY"})
	assert.ErrorContains(t, err, "DOCQA_TEST_MISSING_KEY")
}

func TestNew_SelectsBackend(t *testing.T) {
	t.Setenv("DOCQA_TEST_KEY", "k")
	for typ, name := range map[string]string{
		"huggingface": "huggingface:m",
		"openai":      "openai:m",
		"anthropic":   "anthropic:m",
	} {
		c, err := New(context.Background(), config.LLMConfig{Type: typ, APIKeyEnv: "DOCQA_TEST_KEY", Model: "m", MaxNewTokens: 10})
		require.NoError(t, err, typ)
		assert.Equal(t, name, c.Name())
	}
	_, err := New(context.Background(), config.LLMConfig{Type: "llamacpp", APIKeyEnv: "DOCQA_TEST_KEY"})
	assert.Error(t, err)
}
