package main

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const (
	submitRateLimitRequests = 5
	submitRateLimitWindow   = 10 * time.Minute
)

type rateBucket struct {
	start time.Time
	count int
}

// rateLimiter counts requests per key in fixed windows.
type rateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	buckets     map[string]rateBucket
}

func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		maxRequests: maxRequests,
		window:      window,
		buckets:     make(map[string]rateBucket),
	}
}

func (l *rateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok || now.Sub(bucket.start) >= l.window {
		l.buckets[key] = rateBucket{start: now, count: 1}
		return true
	}
	bucket.count++
	l.buckets[key] = bucket
	return bucket.count <= l.maxRequests
}

func (l *rateLimiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, bucket := range l.buckets {
		if now.Sub(bucket.start) >= l.window {
			delete(l.buckets, key)
		}
	}
}

func (l *rateLimiter) startCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.prune(now)
			}
		}
	}()
}

// allowSubmit throttles backend writes per client IP so a stuck button
// cannot flood the backend. Submits rejected by validation never get here.
func (a *App) allowSubmit(clientIP string) error {
	if a.submitLimiter == nil {
		return nil
	}
	if !a.submitLimiter.allow("submit:"+clientIP, time.Now()) {
		a.log.Warn("submission rate limited", "ip", clientIP)
		return &apiError{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: "Too many submissions, wait a few minutes"}
	}
	return nil
}
