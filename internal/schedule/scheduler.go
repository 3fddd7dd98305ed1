package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/siyinging/social-publisher/internal/logger"
)

// Handler is a job's unit of work. On shutdown the context it receives
// survives for a grace period before cancelling, long enough for the current
// segment to settle without an unbounded run holding the process open.
type Handler func(ctx context.Context) error

// defaultDrainGrace is how long an in-flight handler may keep running after
// shutdown begins.
const defaultDrainGrace = 30 * time.Second

// Job is a named, time-triggered unit of work. Jobs hold no content state;
// the trigger owns timing only.
type Job struct {
	Name    string
	Trigger Trigger
	Run     Handler
}

// ErrorFunc is called at the dispatch boundary when a handler returns an
// error or panics. It must not block for long.
type ErrorFunc func(jobName string, err error)

// Scheduler fires registered jobs at their trigger times. One goroutine per
// job computes the next absolute fire time and sleeps until it, so timer
// jitter cannot double-fire and successive runs do not accumulate drift.
// A job never overlaps itself: its next fire time is computed only after
// the previous run returns. Distinct jobs run concurrently.
type Scheduler struct {
	logger     logger.Logger
	onError    ErrorFunc
	drainGrace time.Duration

	mu      sync.Mutex
	jobs    map[string]*Job
	started bool
	wg      sync.WaitGroup
}

// NewScheduler creates an empty scheduler registry. onError may be nil.
func NewScheduler(log logger.Logger, onError ErrorFunc) *Scheduler {
	return &Scheduler{
		logger:     log,
		onError:    onError,
		drainGrace: defaultDrainGrace,
		jobs:       make(map[string]*Job),
	}
}

// SetDrainGrace overrides how long in-flight handlers may keep running after
// shutdown begins. Must be called before Run.
func (s *Scheduler) SetDrainGrace(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainGrace = d
}

// Register adds a job to the registry. Jobs are registered at process start,
// before Run; registration after start is an error, as is a duplicate name.
func (s *Scheduler) Register(job *Job) error {
	if job.Name == "" || job.Trigger == nil || job.Run == nil {
		return fmt.Errorf("job requires name, trigger and handler")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("register %q: scheduler already running", job.Name)
	}
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("register %q: duplicate job name", job.Name)
	}
	s.jobs[job.Name] = job
	return nil
}

// Jobs returns the names of all registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Run blocks until ctx is cancelled, dispatching jobs as their triggers
// fire. On cancellation it stops scheduling new fires and waits for any
// in-flight handlers to drain.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.mu.Unlock()

	s.logger.Info("scheduler started", logger.Int("jobs", len(jobs)))

	for _, job := range jobs {
		s.wg.Add(1)
		go s.runJob(ctx, job)
	}

	<-ctx.Done()
	s.logger.Info("scheduler stopping, draining in-flight jobs")
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	defer s.wg.Done()

	for {
		now := time.Now().UTC()
		next := job.Trigger.Next(now)
		if next.IsZero() {
			s.logger.Warn("trigger yields no future fire time, job retired",
				logger.String("job", job.Name))
			return
		}

		s.logger.Debug("job scheduled",
			logger.String("job", job.Name),
			logger.Time("next_fire", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.dispatch(ctx, job)
	}
}

// dispatch runs one firing. Panics and errors are caught here: a failing
// handler never stops the scheduler loop or other jobs.
func (s *Scheduler) dispatch(parent context.Context, job *Job) {
	// The handler context outlives shutdown for drainGrace, then cancels so
	// the drain cannot stall on remaining segments or backoff sleeps.
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	handlerDone := make(chan struct{})
	defer close(handlerDone)
	go func() {
		select {
		case <-handlerDone:
		case <-parent.Done():
			select {
			case <-handlerDone:
			case <-time.After(s.drainGrace):
				s.logger.Warn("drain grace elapsed, cancelling handler",
					logger.String("job", job.Name))
				cancel()
			}
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("job panicked: %v", r)
			s.logger.Error("job panic recovered",
				logger.String("job", job.Name),
				logger.Error(err))
			if s.onError != nil {
				s.onError(job.Name, err)
			}
		}
	}()

	start := time.Now()
	s.logger.Info("job firing", logger.String("job", job.Name))

	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed",
			logger.String("job", job.Name),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		if s.onError != nil {
			s.onError(job.Name, err)
		}
		return
	}

	s.logger.Info("job finished",
		logger.String("job", job.Name),
		logger.Duration("elapsed", time.Since(start)))
}

// RunOnce fires a single registered job immediately, outside its schedule.
// Used by the operator CLI to exercise one slot on demand.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q is not registered", name)
	}
	return job.Run(ctx)
}
