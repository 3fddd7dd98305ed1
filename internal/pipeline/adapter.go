package pipeline

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/siyinging/social-publisher/internal/metrics"
	"github.com/siyinging/social-publisher/internal/platform"
	"github.com/siyinging/social-publisher/internal/retry"
)

// instrumentedAdapter wraps a platform adapter with a process-wide rate
// limiter, bounded retry on transient errors and call metrics. All publish
// traffic goes through one instance so the limiter actually bounds the
// process, not a single slot.
type instrumentedAdapter struct {
	inner   platform.Adapter
	limiter *rate.Limiter
	policy  retry.Policy
	metrics *metrics.Metrics
}

// NewInstrumentedAdapter wraps inner. limiter may be nil to disable rate
// limiting; policy should use platform.IsRetryable as its predicate.
func NewInstrumentedAdapter(inner platform.Adapter, limiter *rate.Limiter, policy retry.Policy, m *metrics.Metrics) platform.Adapter {
	return &instrumentedAdapter{
		inner:   inner,
		limiter: limiter,
		policy:  policy,
		metrics: m,
	}
}

func (a *instrumentedAdapter) call(ctx context.Context, op string, fn func() (string, error)) (string, error) {
	var id string
	attempt := 0

	err := a.policy.Do(ctx, func() error {
		if attempt > 0 && a.metrics != nil {
			a.metrics.AdapterRetries.Inc()
		}
		attempt++

		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		var callErr error
		id, callErr = fn()
		if a.metrics != nil {
			result := "ok"
			if callErr != nil {
				result = "error"
			}
			a.metrics.AdapterCalls.WithLabelValues(op, result).Inc()
		}
		return callErr
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (a *instrumentedAdapter) Post(ctx context.Context, text string) (string, error) {
	return a.call(ctx, "post", func() (string, error) {
		return a.inner.Post(ctx, text)
	})
}

func (a *instrumentedAdapter) Reply(ctx context.Context, inReplyTo, text string) (string, error) {
	return a.call(ctx, "reply", func() (string, error) {
		return a.inner.Reply(ctx, inReplyTo, text)
	})
}

func (a *instrumentedAdapter) Quote(ctx context.Context, quotedID, text string) (string, error) {
	return a.call(ctx, "quote", func() (string, error) {
		return a.inner.Quote(ctx, quotedID, text)
	})
}
