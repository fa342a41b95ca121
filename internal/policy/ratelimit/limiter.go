// Package ratelimit spaces out requests to each source host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/BhekumusaEric/apply4me-sub001/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

type hostState struct {
	limiter  *rate.Limiter
	notUntil time.Time
}

// Limiter manages per-host rate limits and server-requested pauses.
type Limiter struct {
	mu           sync.Mutex
	hosts        map[string]*hostState
	defaultRate  rate.Limit
	defaultBurst int
	now          func() time.Time
}

// New creates a new Limiter. A non-positive rate disables limiting.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		hosts:        make(map[string]*hostState),
		defaultRate:  r,
		defaultBurst: burst,
		now:          time.Now,
	}
}

// Wait blocks until rawURL's host may be contacted again.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	l.mu.Lock()
	state := l.state(host)
	pause := state.notUntil.Sub(l.now())
	l.mu.Unlock()

	start := time.Now()
	if pause > 0 {
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit pause: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if err := state.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Pause holds every request to rawURL's host for d, typically the
// Retry-After of a 429 or 503 response.
func (l *Limiter) Pause(rawURL string, d time.Duration) {
	if d <= 0 {
		return
	}
	host := hostOf(rawURL)
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.state(host)
	if until := l.now().Add(d); until.After(state.notUntil) {
		state.notUntil = until
	}
}

func (l *Limiter) state(host string) *hostState {
	s, ok := l.hosts[host]
	if !ok {
		s = &hostState{limiter: rate.NewLimiter(l.defaultRate, l.defaultBurst)}
		l.hosts[host] = s
	}
	return s
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
