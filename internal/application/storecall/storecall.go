// Package storecall runs store operations under the transient-failure retry
// policy shared by commands and queries. Only shared.ErrTransient failures
// are retried; when the budget runs out the caller sees shared.ErrUnavailable.
package storecall

import (
	"context"
	"time"

	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/pkg/logger"
	"github.com/alem-hub/learnhub/pkg/retry"
)

// DefaultMaxAttempts is used when a Runner is built with a non-positive budget.
const DefaultMaxAttempts = 3

// Runner executes store calls with bounded retries.
type Runner struct {
	retrier *retry.Retrier
	log     *logger.Logger
}

// New creates a Runner allowing maxAttempts tries per call.
func New(maxAttempts int, log *logger.Logger) *Runner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{log: log.With(logger.Component("store"))}
	r.retrier = retry.StoreRetrier(maxAttempts, shared.IsTransient,
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			r.log.Warn("retrying transient store failure",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)
	return r
}

// Immediate returns a Runner that retries without waiting. Tests use it.
func Immediate(maxAttempts int) *Runner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Runner{
		log: logger.Nop(),
		retrier: retry.New(
			retry.WithMaxAttempts(maxAttempts),
			retry.WithInitialDelay(0),
			retry.WithMaxDelay(0),
			retry.WithJitter(0),
			retry.WithRetryIf(shared.IsTransient),
		),
	}
}

// Do runs fn, translating an exhausted retry budget into ErrUnavailable.
func (r *Runner) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return r.translate(op, r.retrier.Do(ctx, fn))
}

// Value is Do for calls returning a value.
func Value[T any](ctx context.Context, r *Runner, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	out, err := retry.DoWithData(ctx, r.retrier, fn)
	if err != nil {
		var zero T
		return zero, r.translate(op, err)
	}
	return out, nil
}

func (r *Runner) translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if retry.IsExhausted(err) || shared.IsTransient(err) {
		r.log.Error("store unavailable", logger.Operation(op), logger.Err(err))
		return shared.ErrUnavailable.WithOp(op).Wrap(err)
	}
	return err
}
