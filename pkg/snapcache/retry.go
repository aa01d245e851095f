package snapcache

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// primaryCodeMask extracts the primary result code from an extended one.
const primaryCodeMask = 0xff

// retryConfig controls retry behavior for transient SQLite errors.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// defaultRetryConfig is used for every sqlite store operation.
var defaultRetryConfig = retryConfig{
	maxRetries: 5,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   time.Second,
}

// transientMessages are matched when the driver error is wrapped beyond errors.As.
var transientMessages = []string{
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"database is locked",
	"database table is locked",
}

// isTransient reports whether err is a lock conflict that a retry can resolve.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & primaryCodeMask {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}

	msg := err.Error()

	for _, pattern := range transientMessages {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// retryOp executes fn with exponential backoff and jitter for transient errors.
// It returns immediately on success, on a permanent error, or when ctx ends.
func retryOp(ctx context.Context, cfg retryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransient(lastErr) {
			return lastErr
		}

		if attempt == cfg.maxRetries {
			break
		}

		timer := time.NewTimer(backoffDelay(cfg, attempt))

		select {
		case <-ctx.Done():
			timer.Stop()

			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}

	return lastErr
}

// backoffDelay computes baseDelay * 2^attempt capped at maxDelay, plus a
// random jitter in [0, baseDelay).
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt)
	if delay > cfg.maxDelay || delay <= 0 {
		delay = cfg.maxDelay
	}

	if cfg.baseDelay <= 0 {
		return delay
	}

	return delay + rand.N(cfg.baseDelay)
}
