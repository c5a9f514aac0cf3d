// Package ratelimit holds the per-client fixed-window quota used by the
// suggestion endpoint.
//
// A window opens on the first counted request of a client and lasts exactly
// Window; requests inside it never move its start. Once now-start >= Window the
// next request opens a fresh window with a zero count.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shadowtips-backend/config"
)

var ErrUnknownBackend = errors.New("unknown quota backend")

// Decision is the outcome of CheckAndConsume.
type Decision struct {
	Key     string
	Allowed bool
	// Count is the number of consumed slots in the current window, including
	// this request when Allowed.
	Count       int
	Limit       int
	WindowStart time.Time
	ResetAt     time.Time
}

// RetryAfter is the time left until the window of a throttled decision closes.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter is an atomic per-key check-and-increment.
type Limiter interface {
	// CheckAndConsume admits the request and counts it, or reports it throttled
	// without changing any state.
	CheckAndConsume(ctx context.Context, key string) (Decision, error)
	// Release hands back a slot taken by an allowed decision. It is a no-op
	// when the window of the decision has already closed.
	Release(ctx context.Context, d Decision) error
}

// New builds the limiter selected by cfg.QuotaBackend.
func New(cfg config.Suggest) (Limiter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.QuotaBackend)) {
	case "memory", "":
		return NewMemoryStore(cfg.Limit, cfg.Window,
			WithStaleWindows(cfg.StaleWindows),
			WithMaxKeys(cfg.MaxKeys),
		), nil
	case "redis":
		return NewRedisStoreFromAddr(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Limit, cfg.Window)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.QuotaBackend)
	}
}
