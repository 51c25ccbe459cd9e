package providers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"mailcast/internal/observability"
)

// Guard wraps a Sender with an optional local rate limit and circuit breaker.
// Neither retries: a rejected or failed call is returned to the caller as is.
type Guard struct {
	Next    Sender
	Name    string
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker
}

func NewBreaker(name string, consecutiveFailures uint32, openFor time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= consecutiveFailures },
	})
}

func (g *Guard) Send(ctx context.Context, req Request) (Result, error) {
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			observability.ProviderSend.WithLabelValues(g.Name, "rate_limited_local", "0").Inc()
			return Result{Provider: g.Name}, err
		}
	}

	start := time.Now()
	res, err := g.execute(ctx, req)
	observability.ProviderLatency.WithLabelValues(g.Name).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		observability.ProviderSend.WithLabelValues(g.Name, "cb_open", "0").Inc()
	case err != nil:
		status := 0
		var pe *Error
		if errors.As(err, &pe) {
			status = pe.HTTPStatus
		}
		observability.ProviderSend.WithLabelValues(g.Name, "error", strconv.Itoa(status)).Inc()
	default:
		observability.ProviderSend.WithLabelValues(g.Name, "ok", strconv.Itoa(res.HTTPStatus)).Inc()
	}
	return res, err
}

func (g *Guard) execute(ctx context.Context, req Request) (Result, error) {
	if g.Breaker == nil {
		return g.Next.Send(ctx, req)
	}
	out, err := g.Breaker.Execute(func() (any, error) {
		return g.Next.Send(ctx, req)
	})
	// an open breaker never reached the provider and has no result
	res, ok := out.(Result)
	if !ok {
		res = Result{Provider: g.Name}
	}
	return res, err
}
