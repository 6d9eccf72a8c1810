package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/models"
)

// resilient wraps an adapter with a rate limiter, a circuit breaker, and a
// retry budget. Only transient failures are retried; auth, not-found,
// malformed, and deadline pass straight through to the scheduler.
type resilient struct {
	next     Adapter
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	attempts uint64
	curve    config.BackoffConfig
}

// Wrap applies the configured resilience middleware to an adapter.
func Wrap(a Adapter, cfg config.AdapterConfig) Adapter {
	r := &resilient{
		next:     a,
		attempts: uint64(cfg.RetryAttempts),
		curve:    cfg.Backoff,
	}
	if cfg.RateLimitPerSec > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1)
	}
	if cfg.BreakerThreshold > 0 {
		threshold := uint32(cfg.BreakerThreshold)
		r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: a.Name(),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}
	return r
}

func (r *resilient) Name() string                       { return r.next.Name() }
func (r *resilient) RequiredIdentifiers() []models.Slot { return r.next.RequiredIdentifiers() }
func (r *resilient) Dependencies() []string             { return r.next.Dependencies() }
func (r *resilient) Modes() []models.Mode               { return r.next.Modes() }

func (r *resilient) Execute(ctx context.Context, q Query) (*Result, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, NewError(r.Name(), ErrDeadline, err)
		}
	}
	if r.breaker == nil {
		return r.executeWithRetry(ctx, q)
	}
	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.executeWithRetry(ctx, q)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, NewError(r.Name(), ErrTransient, err)
		}
		return nil, err
	}
	return out.(*Result), nil
}

func (r *resilient) executeWithRetry(ctx context.Context, q Query) (*Result, error) {
	curve := backoff.NewExponentialBackOff()
	curve.InitialInterval = time.Duration(r.curve.BaseMs) * time.Millisecond
	curve.MaxInterval = time.Duration(r.curve.MaxMs) * time.Millisecond

	var policy backoff.BackOff = backoff.WithContext(curve, ctx)
	if r.attempts > 0 {
		policy = backoff.WithMaxRetries(policy, r.attempts)
	}

	var result *Result
	operation := func() error {
		out, err := r.next.Execute(ctx, q)
		if err != nil {
			if KindOf(err) != ErrTransient {
				return backoff.Permanent(err)
			}
			return err
		}
		result = out
		return nil
	}
	if err := backoff.Retry(operation, policy); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return result, nil
}
