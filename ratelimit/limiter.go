// Package ratelimit throttles outbound sends per destination.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// bucketIdleTTL is how long an untouched bucket survives before pruning.
	bucketIdleTTL = 5 * time.Minute
	pruneInterval = time.Minute
)

// Limiter hands out send permits from per-destination token buckets.
// Buckets are created lazily on first use and pruned once idle, so the
// map does not grow with churn in webhook registrations.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
}

type bucket struct {
	level   float64 // tokens currently available
	perSec  float64 // refill rate; burst capacity equals one second of refill
	touched time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		buckets:   make(map[string]*bucket),
		lastPrune: time.Now(),
	}
}

// Allow reports whether one send may proceed now for the given key,
// consuming a token if so. A perSecond of 0 or less means no limit.
func (l *Limiter) Allow(key string, perSecond int) bool {
	if perSecond <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ok, _ := l.take(key, float64(perSecond), time.Now())
	return ok
}

// Wait blocks until a token is available for the key or ctx is done.
// The sleep is sized to the token deficit rather than polled at a fixed
// interval, so a waiter wakes close to when its token actually exists.
func (l *Limiter) Wait(ctx context.Context, key string, perSecond int) error {
	if perSecond <= 0 {
		return nil
	}

	for {
		l.mu.Lock()
		ok, deficit := l.take(key, float64(perSecond), time.Now())
		l.mu.Unlock()
		if ok {
			return nil
		}

		timer := time.NewTimer(deficit)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset discards the bucket for a key, refilling it on next use.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// take refills the key's bucket to now and consumes a token when one is
// available. On failure it returns how long until a full token exists.
// Caller holds l.mu.
func (l *Limiter) take(key string, perSec float64, now time.Time) (bool, time.Duration) {
	if now.Sub(l.lastPrune) > pruneInterval {
		l.prune(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{level: perSec, perSec: perSec, touched: now}
		l.buckets[key] = b
	}

	b.level += now.Sub(b.touched).Seconds() * perSec
	if b.level > perSec {
		b.level = perSec
	}
	b.perSec = perSec
	b.touched = now

	if b.level >= 1 {
		b.level--
		return true, 0
	}

	wait := time.Duration((1 - b.level) / perSec * float64(time.Second))
	return false, wait
}

// prune drops buckets that have been idle long enough to be full anyway.
// Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.touched) > bucketIdleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastPrune = now
}
