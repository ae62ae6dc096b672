package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff is an exponential retry schedule.
type Backoff struct {
	// First is the delay before the first retry.
	First time.Duration
	// Max caps a single delay.
	Max time.Duration
	// Budget is the total time allowed across all attempts.
	Budget time.Duration
	// Retries is the number of attempts after the first one.
	Retries uint64
}

// StartupBackoff waits for a dependency that may still be booting.
var StartupBackoff = Backoff{
	First:   500 * time.Millisecond,
	Max:     5 * time.Second,
	Budget:  30 * time.Second,
	Retries: 5,
}

// Retry calls op until it succeeds or the schedule runs out. An error wrapped
// with backoff.Permanent ends it at once, as does ctx. onRetry may be nil and
// is told about each failure that will be retried.
func Retry[T any](
	ctx context.Context, op func() (T, error), schedule Backoff, onRetry func(err error, wait time.Duration),
) (T, error) {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(schedule.First),
		backoff.WithMaxInterval(schedule.Max),
		backoff.WithMaxElapsedTime(schedule.Budget),
	), schedule.Retries)

	return backoff.RetryNotifyWithData(op, backoff.WithContext(b, ctx), onRetry)
}
