// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry runs a function with backoff, jitter and context cancellation.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Func must respect ctx.
type Func func(ctx context.Context) error

// RetryIf reports whether err should trigger another attempt.
type RetryIf func(error) bool

// OnRetry is called before sleeping for the next attempt.
type OnRetry func(attempt int, err error, wait time.Duration)

// Backoff returns the wait before retry number attempt (0-based).
type Backoff interface {
	Next(attempt int) time.Duration
}

type backoffFunc func(attempt int) time.Duration

func (f backoffFunc) Next(attempt int) time.Duration { return f(attempt) }

// Fixed waits interval between attempts.
func Fixed(interval time.Duration) Backoff {
	return backoffFunc(func(int) time.Duration { return interval })
}

// Linear waits base*(attempt+1), capped by the optional max.
func Linear(base time.Duration, max ...time.Duration) Backoff {
	limit := optionalMax(max)
	return backoffFunc(func(attempt int) time.Duration {
		return capped(base*time.Duration(attempt+1), limit)
	})
}

// Exponential waits base*2^attempt, capped by the optional max.
func Exponential(base time.Duration, max ...time.Duration) Backoff {
	limit := optionalMax(max)
	return backoffFunc(func(attempt int) time.Duration {
		if attempt > 30 {
			attempt = 30
		}
		return capped(base*time.Duration(1<<attempt), limit)
	})
}

func optionalMax(max []time.Duration) time.Duration {
	if len(max) > 0 {
		return max[0]
	}
	return 0
}

func capped(d, limit time.Duration) time.Duration {
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

// Jitter adjusts a backoff duration.
type Jitter func(time.Duration) time.Duration

func NoJitter(d time.Duration) time.Duration { return d }

// FullJitter returns a random duration in [0, d).
func FullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)))
}

// EqualJitter returns d/2 plus a random duration in [0, d/2).
func EqualJitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(rand.Int64N(int64(half)))
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not retryable regardless of RetryIf.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type config struct {
	maxAttempts    int
	maxElapsedTime time.Duration
	backoff        Backoff
	jitter         Jitter
	retryIf        RetryIf
	onRetry        OnRetry
}

func defaultConfig() *config {
	return &config{
		maxAttempts: 3,
		backoff:     Fixed(time.Second),
		jitter:      NoJitter,
		retryIf:     IsRetryableError,
	}
}

type Option func(*config)

// WithMaxAttempts counts the first attempt. Non-positive values are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithMaxElapsedTime(d time.Duration) Option {
	return func(c *config) { c.maxElapsedTime = d }
}

func WithBackoff(b Backoff) Option {
	return func(c *config) {
		if b != nil {
			c.backoff = b
		}
	}
}

func WithJitter(j Jitter) Option {
	return func(c *config) {
		if j != nil {
			c.jitter = j
		}
	}
}

func WithRetryIf(fn RetryIf) Option {
	return func(c *config) {
		if fn != nil {
			c.retryIf = fn
		}
	}
}

func WithOnRetry(fn OnRetry) Option {
	return func(c *config) { c.onRetry = fn }
}

// Do runs fn until it succeeds, the attempts or elapsed time run out, ctx is done,
// or fn returns a non-retryable error. The last error is returned.
func Do(ctx context.Context, fn Func, opts ...Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		if cfg.maxElapsedTime > 0 && attempt > 0 && time.Since(start) >= cfg.maxElapsedTime {
			return lastErr
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if !cfg.retryIf(err) || attempt == cfg.maxAttempts-1 {
			return err
		}

		wait := cfg.jitter(cfg.backoff.Next(attempt))
		if cfg.onRetry != nil {
			cfg.onRetry(attempt+1, err, wait)
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		}
	}
	return lastErr
}

// IsRetryableError retries everything except context cancellation and deadline.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
