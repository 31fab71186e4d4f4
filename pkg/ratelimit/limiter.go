package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound dispatches
type Limiter interface {
	// Allow reports whether a dispatch may start now, consuming a slot if so
	Allow() bool
	// Wait blocks until a dispatch may start or ctx is done
	Wait(ctx context.Context) error
	// Reset restores the initial pacing
	Reset()
}

// Observer is implemented by limiters that adapt to responses
type Observer interface {
	Observe(latency time.Duration, status int)
}

// DelayLimiter spaces dispatches at least delay apart
type DelayLimiter struct {
	delay time.Duration

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewDelayLimiter creates a limiter allowing one dispatch per delay. A zero
// delay never blocks.
func NewDelayLimiter(delay time.Duration) *DelayLimiter {
	return &DelayLimiter{
		delay:   delay,
		limiter: rate.NewLimiter(every(delay), 1),
	}
}

func (d *DelayLimiter) current() *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limiter
}

func (d *DelayLimiter) Allow() bool { return d.current().Allow() }

// Wait blocks on the limiter in place when called; a concurrent Reset does
// not release it early.
func (d *DelayLimiter) Wait(ctx context.Context) error { return d.current().Wait(ctx) }

func (d *DelayLimiter) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limiter = rate.NewLimiter(every(d.delay), 1)
}

// Delay returns the configured spacing
func (d *DelayLimiter) Delay() time.Duration { return d.delay }

func every(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// AutoThrottleConfig bounds the adaptive delay
type AutoThrottleConfig struct {
	// MinDelay is the floor, normally the configured download delay
	MinDelay   time.Duration
	StartDelay time.Duration
	MaxDelay   time.Duration
	// TargetConcurrency is the average number of requests to keep in flight
	TargetConcurrency float64
	// ErrorCodes never lower the delay
	ErrorCodes []int
}

// AutoThrottle adjusts the dispatch delay from observed latencies: the
// delay moves halfway towards latency/TargetConcurrency on every response,
// clamped to [MinDelay, MaxDelay].
type AutoThrottle struct {
	cfg        AutoThrottleConfig
	errorCodes map[int]struct{}

	mu      sync.Mutex
	delay   time.Duration
	limiter *rate.Limiter
}

// NewAutoThrottle creates an adaptive limiter
func NewAutoThrottle(cfg AutoThrottleConfig) *AutoThrottle {
	if cfg.TargetConcurrency <= 0 {
		cfg.TargetConcurrency = 1
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	codes := make(map[int]struct{}, len(cfg.ErrorCodes))
	for _, c := range cfg.ErrorCodes {
		codes[c] = struct{}{}
	}
	at := &AutoThrottle{cfg: cfg, errorCodes: codes}
	at.Reset()
	return at
}

func (a *AutoThrottle) Allow() bool {
	a.mu.Lock()
	l := a.limiter
	a.mu.Unlock()
	return l.Allow()
}

func (a *AutoThrottle) Wait(ctx context.Context) error {
	a.mu.Lock()
	l := a.limiter
	a.mu.Unlock()
	return l.Wait(ctx)
}

// Reset returns to the start delay
func (a *AutoThrottle) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.delay = a.clamp(a.cfg.StartDelay)
	a.limiter = rate.NewLimiter(every(a.delay), 1)
}

// Observe feeds one response into the delay estimate
func (a *AutoThrottle) Observe(latency time.Duration, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	target := time.Duration(float64(latency) / a.cfg.TargetConcurrency)
	next := (a.delay + target) / 2
	if next < target {
		next = target
	}
	next = a.clamp(next)

	if _, isErr := a.errorCodes[status]; isErr && next < a.delay {
		return
	}
	if next == a.delay {
		return
	}
	a.delay = next
	a.limiter.SetLimit(every(next))
}

// Delay returns the current dispatch delay
func (a *AutoThrottle) Delay() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.delay
}

func (a *AutoThrottle) clamp(d time.Duration) time.Duration {
	if d < a.cfg.MinDelay {
		d = a.cfg.MinDelay
	}
	if a.cfg.MaxDelay > 0 && d > a.cfg.MaxDelay {
		d = a.cfg.MaxDelay
	}
	return d
}
