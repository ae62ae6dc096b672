package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	clientErrors "github.com/jaxron/axonet/pkg/client/errors"
	"github.com/jaxron/axonet/pkg/client/logger"
	"github.com/jaxron/axonet/pkg/client/middleware"
	"github.com/sony/gobreaker"
)

var (
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrCircuitExhausted = errors.New("circuit breaker is exhausted")
)

// BreakerMiddleware trips on upstream outages only. Client errors such as the
// 404 for a character outside any fleet are answers, not failures, and pass
// through without being counted.
type BreakerMiddleware struct {
	breaker *gobreaker.CircuitBreaker
	logger  logger.Logger
}

// NewBreaker creates a breaker that opens once at least three requests were
// seen in the interval and 60% of them failed.
func NewBreaker(maxRequests uint32, interval, timeout time.Duration) *BreakerMiddleware {
	m := &BreakerMiddleware{
		breaker: nil,
		logger:  &logger.NoOpLogger{},
	}

	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "esi",
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.WithFields(
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			).Warn("Circuit breaker state changed")
		},
		IsSuccessful: nil,
	})

	return m
}

// Process runs the rest of the chain inside the breaker.
func (m *BreakerMiddleware) Process(
	ctx context.Context, httpClient *http.Client, req *http.Request, next middleware.NextFunc,
) (*http.Response, error) {
	var nextErr error

	result, err := m.breaker.Execute(func() (any, error) {
		resp, err := next(ctx, httpClient, req)
		nextErr = err

		if err != nil && !countsAsFailure(resp) {
			return resp, nil
		}

		return resp, err
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState):
			return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		case errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w: %w", ErrCircuitExhausted, err)
		}
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, clientErrors.ErrUnreachable
	}

	return resp, nextErr
}

// SetLogger sets the logger for the middleware.
func (m *BreakerMiddleware) SetLogger(l logger.Logger) {
	m.logger = l
}

// countsAsFailure reports whether a response indicates the upstream is unhealthy.
func countsAsFailure(resp *http.Response) bool {
	if resp == nil {
		return true
	}

	return resp.StatusCode >= http.StatusInternalServerError ||
		resp.StatusCode == http.StatusTooManyRequests
}
