package client

import (
	"errors"

	"github.com/sony/gobreaker"

	"conversation-chaos/internal/logging"
)

// newBreaker trips after BreakerFailures consecutive server-side failures and
// tries again after BreakerTimeout. 4xx answers mean the server is healthy,
// so they never count against it.
func newBreaker(config *Config, logger *logging.Logger) *gobreaker.CircuitBreaker {
	failures := config.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "conversation-chaos",
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.StatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}
