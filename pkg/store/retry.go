package store

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// retry executes fn up to attempts times with a fixed delay between
// attempts. Only transient errors are retried; other errors return
// immediately. Returns the last error if all attempts fail, or ctx.Err()
// if cancelled while waiting.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !isTransient(err) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}

// isTransient reports whether err looks like a dropped or unavailable
// connection rather than a protocol or data error. These trigger a
// reconnect before the next attempt.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// go-redis surfaces pool exhaustion and closed-client states as plain
	// errors; match the known ones by message.
	msg := err.Error()
	return strings.Contains(msg, "connection") || strings.Contains(msg, "broken pipe")
}
