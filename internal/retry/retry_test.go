package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/siyinging/social-publisher/internal/retry"
)

var errTransient = errors.New("transient")
var errPermanent = errors.New("permanent")

func fastPolicy(maxAttempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		Retryable:    func(err error) bool { return errors.Is(err, errTransient) },
	}
}

func TestPolicy_SucceedsWithinBudget(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPolicy_PermanentErrorAbortsImmediately(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return errPermanent
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("error = %v, want permanent", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent error)", calls)
	}
}

func TestPolicy_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return errTransient
	})
	if !errors.Is(err, retry.ErrMaxAttemptsExceeded) {
		t.Fatalf("error = %v, want ErrMaxAttemptsExceeded", err)
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("exhaustion error should wrap the last attempt error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPolicy_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.Policy{
		MaxAttempts:  10,
		InitialDelay: time.Hour, // never elapses, cancellation has to win
		Multiplier:   2.0,
		Retryable:    func(error) bool { return true },
	}

	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func() error { return errTransient })
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, retry.ErrContextCancelled) {
			t.Fatalf("error = %v, want ErrContextCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestPolicy_NilPredicateNeverRetries(t *testing.T) {
	calls := 0
	policy := retry.Policy{MaxAttempts: 5, InitialDelay: time.Millisecond}
	err := policy.Do(context.Background(), func() error {
		calls++
		return errTransient
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
