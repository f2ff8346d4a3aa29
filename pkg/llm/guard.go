package llm

import (
	"context"

	"github.com/PlanSightAI/plansight-mvp/pkg/resilience"
)

// Guard wraps a Client with rate limiting and circuit breaking. Callers
// block until the limiter admits the call; a tripped breaker fails fast
// with resilience.ErrCircuitOpen.
type Guard struct {
	inner   *Client
	limiter *resilience.Limiter
	breaker *resilience.Breaker
}

// NewGuard creates a Guard around a Client.
func NewGuard(inner *Client, limiter *resilience.Limiter, breaker *resilience.Breaker) *Guard {
	return &Guard{inner: inner, limiter: limiter, breaker: breaker}
}

// Complete is the guarded version of Client.Complete.
func (g *Guard) Complete(ctx context.Context, req Request) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	var out string
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Complete(ctx, req)
		return err
	})
	return out, err
}

// Embed is the guarded version of Client.Embed.
func (g *Guard) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out [][]float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Embed(ctx, texts)
		return err
	})
	return out, err
}
