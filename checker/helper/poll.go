package helper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// ErrPollTimeout is returned when a polled condition never became true within its budget.
var ErrPollTimeout = errors.New("condition not met before timeout")

// ErrConditionFalse is what a condition returns to ask for another attempt.
var ErrConditionFalse = errors.New("condition not met yet")

// PollConfig bounds an exponential-backoff poll.
type PollConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxWait         time.Duration
}

func DefaultPollConfig(maxWait time.Duration) PollConfig {
	return PollConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxWait:         maxWait,
	}
}

// Poll calls cond until it reports true, the budget is spent, or ctx is done.
// A non-nil error from cond is logged and retried like a false result.
func Poll(ctx context.Context, what string, cfg PollConfig, cond func(ctx context.Context) (bool, error)) error {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}

	start := time.Now()
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		ok, err := cond(ctx)
		if err != nil {
			log.Debug().Err(err).Str("what", what).Int("attempt", attempt).Msg("[Poll] condition errored")
			return struct{}{}, err
		}
		if !ok {
			return struct{}{}, ErrConditionFalse
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(cfg.MaxWait))
	if err == nil {
		log.Debug().Str("what", what).Int("attempts", attempt).Dur("elapsed", time.Since(start)).Msg("[Poll] condition met")
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("waiting for %s: %w", what, ctxErr)
	}
	return fmt.Errorf("%w: %s after %d attempts in %s: %v", ErrPollTimeout, what, attempt, time.Since(start).Round(time.Millisecond), err)
}

// Retry runs op up to attempts times with a constant pause, returning the first success.
func Retry[T any](ctx context.Context, what string, attempts int, pause time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil {
			log.Warn().Err(err).Str("what", what).Int("attempt", attempt).Msg("[Retry] attempt failed")
		}
		return v, err
	}, backoff.WithBackOff(backoff.NewConstantBackOff(pause)), backoff.WithMaxTries(uint(attempts)))
	if err != nil {
		return res, fmt.Errorf("%s failed after %d attempts: %w", what, attempt, err)
	}
	return res, nil
}

// Sleep pauses for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
