package charon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter admits or rejects requests per client key.
type RateLimiter interface {
	// Allow returns nil when the request may proceed, or an error wrapping
	// ErrRateLimitExceeded.
	Allow(ctx context.Context, key string) error

	Close() error
}

// LimitError reports a rejected request and how long the client should back off.
type LimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%v for %s, retry in %s", ErrRateLimitExceeded, e.Key, e.RetryAfter.Round(time.Millisecond))
}

func (e *LimitError) Unwrap() error {
	return ErrRateLimitExceeded
}

// TokenBucketLimiter keeps one token bucket per client key. Buckets that
// have refilled completely are indistinguishable from new ones and are
// evicted by a background sweep.
type TokenBucketLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*rate.Limiter

	sweepEvery time.Duration
	stop       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

// NewTokenBucketLimiter allows rps requests per second per key with bursts
// of up to burst requests.
func NewTokenBucketLimiter(rps float64, burst int) *TokenBucketLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &TokenBucketLimiter{
		limit:      rate.Limit(rps),
		burst:      burst,
		now:        time.Now,
		buckets:    make(map[string]*rate.Limiter),
		sweepEvery: time.Minute,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow takes one token from key's bucket. A rejected request does not
// consume a token.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) error {
	if key == "" {
		key = "default"
	}
	now := l.now()

	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	res := bucket.ReserveN(now, 1)
	if !res.OK() {
		return &LimitError{Key: key, RetryAfter: time.Second}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return &LimitError{Key: key, RetryAfter: delay}
	}
	return nil
}

// Len returns the number of tracked buckets.
func (l *TokenBucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops every bucket that is full at the current time.
func (l *TokenBucketLimiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, bucket := range l.buckets {
		if bucket.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

func (l *TokenBucketLimiter) sweepLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stop:
			return
		}
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (l *TokenBucketLimiter) Close() error {
	l.closeOnce.Do(func() {
		close(l.stop)
		<-l.done
	})
	return nil
}

// NoOpLimiter is a rate limiter that allows all requests.
type NoOpLimiter struct{}

// NewNoOpLimiter creates a limiter that allows all requests.
func NewNoOpLimiter() *NoOpLimiter {
	return &NoOpLimiter{}
}

func (l *NoOpLimiter) Allow(ctx context.Context, key string) error {
	return nil
}

func (l *NoOpLimiter) Close() error {
	return nil
}
