// Package suggest produces AI conversation starters for a public profile,
// gated by a per-client quota.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shadowtips-backend/metrics"
	"shadowtips-backend/ratelimit"

	"go.uber.org/zap"
)

// ErrProviderFailure wraps every failure of the generation provider,
// whatever its cause.
var ErrProviderFailure = errors.New("suggestion provider failed")

var errUnusableReply = errors.New("provider reply does not hold three delimited questions")

// Provider turns a prompt into raw text.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, prompt string) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// providerName labels provider attempts in logs.
func providerName(p Provider) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}

// Result is either a set of suggestions or a throttled answer.
type Result struct {
	Text      string
	Questions []string
	Throttled bool
	// Count is the client's consumed quota in the current window.
	Count      int
	Limit      int
	RetryAfter time.Duration
}

type Gateway struct {
	limiter  ratelimit.Limiter
	provider Provider
	name     string
	timeout  time.Duration
	retries  int
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Gateway)

// WithTimeout bounds every provider attempt.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRetries sets how many extra attempts follow a failed provider call.
func WithRetries(n int) Option {
	return func(g *Gateway) {
		if n >= 0 {
			g.retries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

func NewGateway(limiter ratelimit.Limiter, provider Provider, opts ...Option) *Gateway {
	g := &Gateway{
		limiter:  limiter,
		provider: provider,
		name:     providerName(provider),
		timeout:  15 * time.Second,
		retries:  1,
		now:      time.Now,
		log:      zap.L(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequestSuggestions consumes one slot of clientID's quota and asks the
// provider for questions. A throttled request is not an error. A failed
// generation hands its slot back and returns an error wrapping ErrProviderFailure.
func (g *Gateway) RequestSuggestions(ctx context.Context, clientID string, params Params) (Result, error) {
	params = params.Normalize()

	d, err := g.limiter.CheckAndConsume(ctx, clientID)
	if err != nil {
		return Result{}, fmt.Errorf("check quota: %w", err)
	}
	if !d.Allowed {
		g.log.Info("suggestion throttled",
			zap.String("client", clientID),
			zap.Int("count", d.Count),
			zap.Int("limit", d.Limit))
		return Result{
			Throttled:  true,
			Count:      d.Count,
			Limit:      d.Limit,
			RetryAfter: d.RetryAfter(g.now()),
		}, nil
	}

	questions, err := g.generate(ctx, BuildPrompt(params))
	if err != nil {
		if rerr := g.limiter.Release(context.WithoutCancel(ctx), d); rerr != nil {
			g.log.Warn("failed to release quota slot", zap.String("client", clientID), zap.Error(rerr))
		}
		return Result{}, fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}

	return Result{
		Text:      strings.Join(questions, Delimiter),
		Questions: questions,
		Count:     d.Count,
		Limit:     d.Limit,
	}, nil
}

func (g *Gateway) generate(ctx context.Context, prompt string) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		questions, err := g.attempt(ctx, prompt)
		if err == nil {
			return questions, nil
		}
		lastErr = err
		g.log.Warn("suggestion provider attempt failed",
			zap.String("provider", g.name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (g *Gateway) attempt(ctx context.Context, prompt string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.provider.Generate(ctx, prompt)
	metrics.ProviderDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	questions := SplitSuggestions(text)
	if len(questions) < QuestionCount {
		metrics.ProviderAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: got %d", errUnusableReply, len(questions))
	}
	metrics.ProviderAttemptsTotal.WithLabelValues("ok").Inc()
	return questions[:QuestionCount], nil
}
