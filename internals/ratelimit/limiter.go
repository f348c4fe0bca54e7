// Package ratelimit provides the in-process rate limiter collaborator.
// Good for single-instance setups (dev, small deployments); swap in a
// distributed implementation behind the same port for horizontal scaling.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BucketConfig names how many attempts a bucket allows per window.
type BucketConfig struct {
	Attempts int
	Window   time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per (bucket, identity) pair.
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]BucketConfig
	entries map[string]*entry

	// idle entries are dropped past this age to bound memory
	maxIdle time.Duration
}

func NewKeyedLimiter(buckets map[string]BucketConfig) *KeyedLimiter {
	return &KeyedLimiter{
		buckets: buckets,
		entries: make(map[string]*entry),
		maxIdle: time.Hour,
	}
}

// CheckAndRecordAttempt counts one attempt and reports whether it fit the
// bucket's budget. Unknown buckets allow everything.
func (l *KeyedLimiter) CheckAndRecordAttempt(_ context.Context, identity, bucket string) (bool, error) {
	cfg, ok := l.buckets[bucket]
	if !ok {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	key := bucket + "|" + identity
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.Attempts)), cfg.Attempts)}
		l.entries[key] = e
	}
	e.lastSeen = now

	if len(l.entries) > 4096 {
		l.evictIdle(now)
	}
	return e.limiter.Allow(), nil
}

func (l *KeyedLimiter) evictIdle(now time.Time) {
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > l.maxIdle {
			delete(l.entries, key)
		}
	}
}
