package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

// retryable reports whether an attempt that failed with err may succeed if
// repeated. Client errors are final; transport failures and overload are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryDelay
	b.Multiplier = c.config.RetryBackoff
	b.MaxInterval = c.config.MaxRetryDelay
	b.RandomizationFactor = 0.2
	return b
}

// executeWithRetry runs op through the circuit breaker, retrying transient
// failures with exponential backoff.
func (c *Client) executeWithRetry(ctx context.Context, name string, op func() ([]byte, error)) ([]byte, error) {
	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return op()
		})
		if err != nil {
			if !retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		data, _ := res.([]byte)
		return data, nil
	}

	maxTries := c.config.MaxRetries + 1
	if maxTries < 1 {
		maxTries = 1
	}

	data, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("Retrying request", "operation", name, "attempt", attempt, "next_delay", next, "error", err)
		}),
	)
	if err != nil {
		if attempt > 1 {
			c.logger.Warn("Request failed after retries", "operation", name, "attempts", attempt, "error", err)
		}
		return nil, err
	}
	return data, nil
}
