package ratelimit

import (
    "sync"
    "time"
)

type bucket struct {
    tokens float64
    last   time.Time
}

// Limiter is a keyed token bucket. Every key shares the same capacity and
// refill rate; buckets start full.
type Limiter struct {
    mu         sync.Mutex
    m          map[string]*bucket
    capacity   float64
    refillRate float64 // tokens per second
    now        func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
    return func(l *Limiter) { l.now = now }
}

func New(capacity, refillPerSec float64, opts ...Option) *Limiter {
    l := &Limiter{
        m:          make(map[string]*bucket),
        capacity:   capacity,
        refillRate: refillPerSec,
        now:        time.Now,
    }
    for _, o := range opts {
        o(l)
    }
    return l
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
    now := l.now()
    l.mu.Lock()
    defer l.mu.Unlock()

    b, ok := l.m[key]
    if !ok {
        b = &bucket{tokens: l.capacity, last: now}
        l.m[key] = b
    }
    // refill
    if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
        b.tokens = min(b.tokens+elapsed*l.refillRate, l.capacity)
        b.last = now
    }
    if b.tokens >= 1 {
        b.tokens--
        return true
    }
    return false
}
