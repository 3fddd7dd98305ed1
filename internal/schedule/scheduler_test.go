package schedule_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siyinging/social-publisher/internal/logger"
	"github.com/siyinging/social-publisher/internal/schedule"
)

// fireTimes is a trigger that fires a fixed number of times shortly after
// each Next call, then never again.
type fireTimes struct {
	remaining int32
}

func (f *fireTimes) Next(after time.Time) time.Time {
	if atomic.AddInt32(&f.remaining, -1) < 0 {
		return after.Add(24 * time.Hour) // effectively never within a test
	}
	return after.Add(5 * time.Millisecond)
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := schedule.NewScheduler(logger.NewNopLogger(), nil)

	job := &schedule.Job{
		Name:    "morning-headline",
		Trigger: &fireTimes{},
		Run:     func(context.Context) error { return nil },
	}
	if err := s.Register(job); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register(job); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := s.Register(&schedule.Job{}); err == nil {
		t.Error("empty job should fail validation")
	}
}

func TestScheduler_DispatchesOnTrigger(t *testing.T) {
	s := schedule.NewScheduler(logger.NewNopLogger(), nil)

	var runs int32
	done := make(chan struct{})
	err := s.Register(&schedule.Job{
		Name:    "slot",
		Trigger: &fireTimes{remaining: 2},
		Run: func(context.Context) error {
			if atomic.AddInt32(&runs, 1) == 2 {
				close(done)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(finished)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire twice in time")
	}

	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}

	if got := atomic.LoadInt32(&runs); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestScheduler_HandlerErrorReachesErrorFunc(t *testing.T) {
	var mu sync.Mutex
	var reported []string
	onError := func(jobName string, err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, jobName+": "+err.Error())
	}

	s := schedule.NewScheduler(logger.NewNopLogger(), onError)

	errored := make(chan struct{})
	var once sync.Once
	_ = s.Register(&schedule.Job{
		Name:    "failing",
		Trigger: &fireTimes{remaining: 1},
		Run: func(context.Context) error {
			once.Do(func() { close(errored) })
			return errors.New("boom")
		},
	})
	_ = s.Register(&schedule.Job{
		Name:    "panicking",
		Trigger: &fireTimes{remaining: 1},
		Run: func(context.Context) error {
			panic("kaboom")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	select {
	case <-errored:
	case <-time.After(2 * time.Second):
		t.Fatal("failing job never ran")
	}

	// Give the panicking job a moment to be recovered as well.
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(reported)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("reported errors = %v, want 2 entries", reported)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
}

func TestScheduler_DrainIsBounded(t *testing.T) {
	s := schedule.NewScheduler(logger.NewNopLogger(), nil)
	s.SetDrainGrace(20 * time.Millisecond)

	started := make(chan struct{})
	var sawCancel atomic.Bool
	_ = s.Register(&schedule.Job{
		Name:    "stuck",
		Trigger: &fireTimes{remaining: 1},
		Run: func(ctx context.Context) error {
			close(started)
			select {
			case <-ctx.Done():
				sawCancel.Store(true)
			case <-time.After(5 * time.Second):
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(finished)
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}

	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not drain within the grace period")
	}
	if !sawCancel.Load() {
		t.Error("handler context was never cancelled")
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	s := schedule.NewScheduler(logger.NewNopLogger(), nil)

	var ran bool
	_ = s.Register(&schedule.Job{
		Name:    "on-demand",
		Trigger: &fireTimes{},
		Run: func(context.Context) error {
			ran = true
			return nil
		},
	})

	if err := s.RunOnce(context.Background(), "on-demand"); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !ran {
		t.Error("handler did not run")
	}
	if err := s.RunOnce(context.Background(), "missing"); err == nil {
		t.Error("RunOnce on unknown job should fail")
	}
}
