// Package registry builds the configured email provider adapter.
package registry

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mailcast/internal/providers"
	"mailcast/internal/providers/resend"
	"mailcast/internal/providers/sendgrid"
)

type Options struct {
	Provider string
	APIKey   string
	BaseURL  string

	// RPS <= 0 disables the local limiter.
	RPS   float64
	Burst int

	// BreakerFailures == 0 disables the circuit breaker.
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
}

// New returns the adapter named by opts.Provider, wrapped in a providers.Guard.
func New(opts Options) (providers.Sender, error) {
	var next providers.Sender
	name := strings.ToLower(strings.TrimSpace(opts.Provider))
	switch name {
	case sendgrid.Name:
		next = sendgrid.New(opts.APIKey, opts.BaseURL)
	case resend.Name:
		next = resend.New(opts.APIKey, opts.BaseURL)
	default:
		return nil, fmt.Errorf("%w: %q", providers.ErrUnknownProvider, opts.Provider)
	}

	g := &providers.Guard{Next: next, Name: name}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		g.Limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	if opts.BreakerFailures > 0 {
		g.Breaker = providers.NewBreaker(name, opts.BreakerFailures, opts.BreakerOpenFor)
	}
	return g, nil
}
