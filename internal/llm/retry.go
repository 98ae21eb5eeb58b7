package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// RetryPolicy governs re-running failed completions: exponential backoff
// starting at BaseDelay, doubling per attempt, capped at MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// sleep is swapped out in tests; nil means a context-aware timer wait.
	sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   10 * time.Second,
	}
}

// Delay returns the backoff before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryClient wraps a Client and re-runs transient failures per the policy.
type retryClient struct {
	inner  Client
	policy RetryPolicy
}

// WithRetry returns a Client that retries transient failures: network
// timeouts, dropped connections, provider rate limits and server faults.
// Validation and auth errors propagate immediately, as does a canceled or
// expired context.
func WithRetry(c Client, policy RetryPolicy) Client {
	return &retryClient{inner: c, policy: policy}
}

func (r *retryClient) Name() string { return r.inner.Name() }

func (r *retryClient) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	var lastErr error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := r.policy.wait(ctx, r.policy.Delay(attempt)); err != nil {
				return nil, err
			}
		}

		res, err := r.inner.Run(ctx, req)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("giving up after %d retries: %w", r.policy.MaxRetries, lastErr)
}

// isRetryable classifies an error as transient. Provider API errors retry
// only on rate limiting and server faults; a bad request or a rejected key
// will fail the same way every time, so it surfaces at once.
func isRetryable(err error) bool {
	var openaiAPIErr *openai.APIError
	if errors.As(err, &openaiAPIErr) {
		return retryableStatus(openaiAPIErr.HTTPStatusCode)
	}
	var openaiReqErr *openai.RequestError
	if errors.As(err, &openaiReqErr) {
		return retryableStatus(openaiReqErr.HTTPStatusCode)
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return retryableStatus(anthropicErr.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return false
}

func retryableStatus(code int) bool {
	return code == 0 ||
		code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
