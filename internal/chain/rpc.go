package chain

import (
	"context"
	"strings"
	"time"
)

// IsRateLimitError reports whether an RPC error looks like throttling.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "-32005")
}

// Retry runs fn up to three times with a small backoff that doubles on rate limits.
// Only read-only calls go through here; transactions are never resubmitted.
func Retry[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond
	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		if IsRateLimitError(err) {
			backoff *= 2
		}
	}
	return zero, lastErr
}

// RevertReason trims an eth_call / eth_estimateGas error down to the revert message.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		s = s[i:]
		if r := strings.TrimSpace(strings.TrimPrefix(s, "execution reverted:")); r != s && r != "" {
			return r
		}
		return s
	}
	return s
}
