package client

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/d3vfreak/fleet-overview/internal/setup/config"
	"github.com/d3vfreak/fleet-overview/internal/setup/telemetry/logger"
	"github.com/jaxron/axonet/middleware/retry"
	"github.com/jaxron/axonet/pkg/client"
	"github.com/jaxron/axonet/pkg/client/middleware"
	"go.uber.org/zap"
)

// GetESIClient constructs the upstream HTTP client with a middleware chain for reliability.
// Responses are never cached or shared between callers here: character names
// must always be fresh and ship names already collapse their own misses.
func GetESIClient(cfg *config.Config, zapLogger *zap.Logger) *client.Client {
	// Order matters: the breaker sees the outcome after retries are exhausted
	middlewares := []middleware.Middleware{
		NewBreaker(
			cfg.CircuitBreaker.MaxRequests,
			time.Duration(cfg.CircuitBreaker.Interval)*time.Millisecond,
			time.Duration(cfg.CircuitBreaker.Timeout)*time.Millisecond,
		),
		retry.New(
			cfg.Retry.MaxRetries,
			time.Duration(cfg.Retry.Delay)*time.Millisecond,
			time.Duration(cfg.Retry.MaxDelay)*time.Millisecond,
		),
	}

	return client.NewClient(
		client.WithMarshalFunc(sonic.Marshal),
		client.WithUnmarshalFunc(sonic.Unmarshal),
		client.WithLogger(logger.New(zapLogger.Named("esi_http"))),
		client.WithTimeout(cfg.RequestTimeout()),
		client.WithMiddleware(middlewares...),
	)
}
