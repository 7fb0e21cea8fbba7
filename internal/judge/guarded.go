package judge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/circuitbreaker"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/retry"
)

// GuardConfig bounds how hard one collaborator is driven.
type GuardConfig struct {
	// RequestsPerSecond caps call rate; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Retry             retry.Config
	Breaker           circuitbreaker.Config
}

// Guarded wraps a Completer with rate limiting, a per-call timeout, retry
// with backoff on transient errors and a circuit breaker.
type Guarded struct {
	name    string
	inner   Completer
	limiter *rate.Limiter
	breaker *circuitbreaker.Breaker
	retry   retry.Config
	timeout time.Duration
	log     logger.Logger
	onCall  func(name string, err error, elapsed time.Duration)
}

// NewGuarded wraps inner. onCall, when set, observes every attempt.
func NewGuarded(name string, inner Completer, cfg GuardConfig, log logger.Logger, onCall func(string, error, time.Duration)) *Guarded {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	log = logger.Component(log, "judge").With(logger.String("collaborator", name))
	bcfg := cfg.Breaker
	bcfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("Circuit breaker state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	rcfg := cfg.Retry
	rcfg.IsRetryable = func(err error) bool {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return false
		}
		return errors.Is(err, ErrTransient) || retry.DefaultIsRetryable(err)
	}

	return &Guarded{
		name:    name,
		inner:   inner,
		limiter: limiter,
		breaker: circuitbreaker.New(bcfg),
		retry:   rcfg,
		timeout: cfg.Timeout,
		log:     log,
		onCall:  onCall,
	}
}

// Complete implements Completer.
func (g *Guarded) Complete(ctx context.Context, system, prompt string) (string, error) {
	var out string
	err := retry.Retry(ctx, g.retry, func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
			}
		}

		return g.breaker.Execute(func() error {
			callCtx := ctx
			if g.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, g.timeout)
				defer cancel()
			}

			start := time.Now()
			text, err := g.inner.Complete(callCtx, system, prompt)
			if g.onCall != nil {
				g.onCall(g.name, err, time.Since(start))
			}
			if err != nil {
				g.log.Debug("Completion attempt failed", logger.Error(err))
				return err
			}
			out = text
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", g.name, err)
	}
	return out, nil
}

// BreakerState exposes the breaker state for health reporting.
func (g *Guarded) BreakerState() circuitbreaker.State {
	return g.breaker.State()
}
