package llm

import (
	"context"
	"log"
	"time"
)

// Middleware decorates a Client to inject cross-cutting concerns.
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RateLimit limits request rate. If rps <= 0, the limiter is disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		return &rateLimited{next: next, rl: newRPSLimiter(rps, burst)}
	}
}

type rateLimited struct {
	next Client
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }

func (c *rateLimited) Close() error { return c.next.Close() }

func (c *rateLimited) Complete(ctx context.Context, system, user string) (string, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return "", err
	}
	return c.next.Complete(ctx, system, user)
}

// WithLogging logs each request's phase, size, latency and outcome.
// A nil logger uses the standard logger.
func WithLogging(l *log.Logger) Middleware {
	if l == nil {
		l = log.Default()
	}
	return func(next Client) Client {
		return &logged{next: next, log: l}
	}
}

type logged struct {
	next Client
	log  *log.Logger
}

func (c *logged) Name() string { return c.next.Name() }
func (c *logged) Close() error { return c.next.Close() }

func (c *logged) Complete(ctx context.Context, system, user string) (string, error) {
	phase := PhaseFrom(ctx)
	start := time.Now()
	out, err := c.next.Complete(ctx, system, user)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		c.log.Printf("llm %s phase=%s input=%dB took=%s error=%v", c.next.Name(), phase, len(user), elapsed, err)
		return "", err
	}
	c.log.Printf("llm %s phase=%s input=%dB output=%dB took=%s", c.next.Name(), phase, len(user), len(out), elapsed)
	return out, nil
}
