// Package platform defines the posting boundary to the social platform and
// the HTTP client that implements it.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Adapter is the capability boundary over the platform's posting API.
// Each call returns the platform id of the created post.
type Adapter interface {
	// Post creates a top-level post.
	Post(ctx context.Context, text string) (string, error)

	// Reply creates a post in reply to an existing post.
	Reply(ctx context.Context, postID, text string) (string, error)

	// Quote creates a post quoting an existing post.
	Quote(ctx context.Context, postID, text string) (string, error)
}

// RateLimitedError indicates the platform rejected the call due to rate
// limiting. Transient: callers retry with backoff.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// AuthError indicates missing or rejected credentials. Permanent: callers
// must not retry.
type AuthError struct {
	Detail string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Detail
}

// PlatformError is any other failure reported by the platform. Retryable is
// set for server-side failures (5xx, transport errors).
type PlatformError struct {
	StatusCode int
	Detail     string
	Retryable  bool
}

func (e *PlatformError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("platform error (status %d): %s", e.StatusCode, e.Detail)
	}
	return "platform error: " + e.Detail
}

// IsRetryable classifies an adapter error. Rate limits and retryable
// platform errors may be retried with backoff; everything else is permanent.
func IsRetryable(err error) bool {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
