// Package retry holds the backoff policy shared by the remote API clients.
package retry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	baseDelay = 200 * time.Millisecond
	maxDelay  = 5 * time.Second
)

// StatusError carries the HTTP status of a failed remote call.
type StatusError struct {
	Code       int
	RetryAfter time.Duration
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Code)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Retryable reports whether err is worth another attempt: 429, 5xx, or a
// transport error that was not caused by the caller's context.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// ParseRetryAfter reads a Retry-After header given in seconds.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Do calls fn until it succeeds, returns a non-retryable error, or maxRetries
// additional attempts have been made. A negative maxRetries means none.
// Waits grow exponentially unless the failure carries a Retry-After hint.
func Do(ctx context.Context, maxRetries int, fn func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = baseDelay
	exp.MaxInterval = maxDelay
	exp.MaxElapsedTime = 0

	hinted := &hintedBackOff{BackOff: exp}
	policy := backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(max(maxRetries, 0))), ctx)

	var last error
	err := backoff.Retry(func() error {
		last = fn()
		if last == nil {
			return nil
		}
		if !Retryable(last) {
			return backoff.Permanent(last)
		}
		var se *StatusError
		if errors.As(last, &se) {
			hinted.hint = se.RetryAfter
		}
		return last
	}, policy)
	if err != nil && ctx.Err() != nil && last != nil && !errors.Is(last, ctx.Err()) {
		return errors.Join(last, ctx.Err())
	}
	return err
}

// hintedBackOff replaces the next exponential wait with a server-provided one.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	d := h.BackOff.NextBackOff()
	if d != backoff.Stop && h.hint > 0 {
		d = h.hint
	}
	h.hint = 0
	return d
}
