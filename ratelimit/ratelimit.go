// Package ratelimit paces outbound API calls and backs off on throttling.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
)

// StatusError is implemented by API errors that carry an HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
}

// RetryAfterError is implemented by errors that know how long the server
// asked us to wait.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// RateLimiter spaces calls out and backs off exponentially on throttling.
type RateLimiter struct {
	limiter           *rate.Limiter
	mu                sync.Mutex
	consecutiveErrors int
	currentDelay      time.Duration
	config            *Config
}

type Config struct {
	APIDelay          time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	MaxAttempts       int
}

// DefaultConfig returns default rate limiter configuration
func DefaultConfig() *Config {
	return &Config{
		APIDelay:          200 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
		MaxAttempts:       5,
	}
}

// SheetsConfig suits the Sheets API quota of 60 writes per minute per user.
func SheetsConfig() *Config {
	return &Config{
		APIDelay:          time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          time.Minute,
		MaxAttempts:       6,
	}
}

// NewRateLimiter creates a new rate limiter. A nil config means DefaultConfig.
func NewRateLimiter(cfg *Config) *RateLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &RateLimiter{
		limiter:      rate.NewLimiter(limitFor(cfg.APIDelay), 1),
		currentDelay: cfg.APIDelay,
		config:       cfg,
	}
}

func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(time.Second) / float64(delay))
}

// Wait blocks until the rate limiter allows the request
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// IsRateLimited reports whether err means the server throttled us.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	var serr StatusError
	if errors.As(err, &serr) {
		return serr.HTTPStatus() == http.StatusTooManyRequests
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

// HandleError decides whether to retry after err and how long to wait first.
// Only throttling errors are retried.
func (r *RateLimiter) HandleError(err error) (shouldRetry bool, waitTime time.Duration) {
	if !IsRateLimited(err) {
		return false, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveErrors++
	waitTime = time.Duration(math.Min(
		float64(r.config.APIDelay)*math.Pow(r.config.BackoffMultiplier, float64(r.consecutiveErrors-1)),
		float64(r.config.MaxDelay),
	))
	var ra RetryAfterError
	if errors.As(err, &ra) && ra.RetryAfter() > waitTime {
		waitTime = min(ra.RetryAfter(), r.config.MaxDelay)
	}

	// Slow the steady-state pace down too, until the next success.
	if waitTime > r.currentDelay {
		r.currentDelay = waitTime
		r.limiter.SetLimit(limitFor(waitTime))
	}

	return r.consecutiveErrors < r.config.MaxAttempts, waitTime
}

// Success resets the backoff after a call goes through.
func (r *RateLimiter) Success() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consecutiveErrors > 0 {
		r.consecutiveErrors = 0
		r.currentDelay = r.config.APIDelay
		r.limiter.SetLimit(limitFor(r.config.APIDelay))
	}
}

// ExecuteWithRetry runs fn under the limiter, retrying throttled calls.
func (r *RateLimiter) ExecuteWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if err := r.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		err := fn()
		if err == nil {
			r.Success()
			return nil
		}
		lastErr = err

		shouldRetry, waitTime := r.HandleError(err)
		if !shouldRetry {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
}
