package llm

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"docqa/internal/domain"
	"docqa/internal/retry"
)

// Limited throttles calls to a backend and retries transient failures.
type Limited struct {
	next       domain.LLM
	limiter    *rate.Limiter
	maxRetries int
}

// NewLimited wraps next. A requestsPerMinute of zero disables throttling.
func NewLimited(next domain.LLM, requestsPerMinute, maxRetries int) *Limited {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, 1), maxRetries: maxRetries}
}

// Name returns the wrapped backend's name.
func (l *Limited) Name() string { return l.next.Name() }

// Complete waits for a rate token before every attempt.
func (l *Limited) Complete(ctx context.Context, prompt string) (string, error) {
	var (
		out     string
		finalErr error // returned as is, never retried
	)
	err := retry.Do(ctx, l.maxRetries, func() error {
		if err := l.limiter.Wait(ctx); err != nil {
			finalErr = err
			return nil
		}
		var err error
		out, err = l.next.Complete(ctx, prompt)
		if errors.Is(err, ErrEmptyResponse) {
			// asking again rarely helps; the caller answers with a fallback
			finalErr = err
			return nil
		}
		return err
	})
	if finalErr != nil {
		return "", finalErr
	}
	return out, err
}
