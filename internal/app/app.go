// Package app wires the publisher's components together and manages the
// process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/siyinging/social-publisher/internal/api"
	"github.com/siyinging/social-publisher/internal/compose"
	"github.com/siyinging/social-publisher/internal/config"
	"github.com/siyinging/social-publisher/internal/dedup"
	"github.com/siyinging/social-publisher/internal/domain"
	"github.com/siyinging/social-publisher/internal/generate"
	"github.com/siyinging/social-publisher/internal/logger"
	"github.com/siyinging/social-publisher/internal/metrics"
	"github.com/siyinging/social-publisher/internal/pipeline"
	"github.com/siyinging/social-publisher/internal/platform"
	"github.com/siyinging/social-publisher/internal/redis"
	"github.com/siyinging/social-publisher/internal/retry"
	"github.com/siyinging/social-publisher/internal/review"
	"github.com/siyinging/social-publisher/internal/schedule"
	"github.com/siyinging/social-publisher/internal/store"
)

// slotJobs maps scheduler job names to the content kind they publish.
var slotJobs = map[string]domain.Kind{
	"morning-headline": domain.KindHeadline,
	"midday-thread":    domain.KindThread,
	"daily-feature":    domain.KindFeature,
	"afternoon-repost": domain.KindRepost,
	"weekly-review":    domain.KindWeeklyReview,
}

// App holds the wired publisher.
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *goredis.Client
	metrics     *metrics.Metrics

	content   *store.ContentRepository
	runlog    *store.RunLogRepository
	guard     *dedup.SlotGuard
	gate      *review.Gate
	pipeline  *pipeline.Pipeline
	scheduler *schedule.Scheduler
	server    *api.Server
}

// Options configures App creation.
type Options struct {
	ConfigPath string
	Version    string
}

// New loads configuration and initializes every component. The returned App
// is ready to Run; Close releases its connections.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	log = log.With(
		logger.String("service", "social-publisher"),
		logger.String("version", opts.Version),
	)

	db, err := store.NewPostgresConnection(store.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	a := &App{
		config:  cfg,
		logger:  log,
		db:      db,
		metrics: metrics.New(),
		content: store.NewContentRepository(db),
		runlog:  store.NewRunLogRepository(db),
	}

	var guard pipeline.SlotGuard
	if cfg.Redis.Enabled {
		client, redisErr := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if redisErr != nil {
			a.Close()
			return nil, redisErr
		}
		a.redisClient = client
		a.guard = dedup.NewSlotGuard(client, cfg.Redis.SlotTTL, log)
		guard = a.guard
	}

	a.gate = review.NewGate(a.content, review.DefaultChecker(compose.MaxPostLength), a.metrics, log)

	client, err := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.Token, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create platform client: %w", err)
	}
	adapter := pipeline.NewInstrumentedAdapter(
		client,
		newLimiter(cfg.Publish.RatePerMinute),
		retryPolicy(cfg.Publish.RetryAttempts),
		a.metrics,
	)

	generator := generate.Generator(generate.NewStaticGenerator(generate.DefaultLibrary()))
	if cfg.Generator.URL != "" {
		generator = generate.WithFallback(
			generate.NewHTTPGenerator(cfg.Generator.URL, cfg.Generator.APIKey),
			generator,
		)
	}

	a.pipeline, err = pipeline.New(pipeline.Options{
		Store:         a.content,
		RunLog:        a.runlog,
		Guard:         guard,
		Generator:     generator,
		Adapter:       adapter,
		Metrics:       a.metrics,
		Logger:        log,
		ReviewEnabled: cfg.Review.Enabled,
		DraftTTL:      cfg.Review.DraftTTL,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.scheduler = schedule.NewScheduler(log, a.recordJobFailure)
	if err := a.registerJobs(); err != nil {
		a.Close()
		return nil, err
	}

	a.server = api.NewServer(api.Options{
		Address:     cfg.Server.Address,
		Debug:       cfg.Debug,
		CORSOrigins: cfg.Server.CORSOrigins,
		Handlers:    api.NewHandlers(a.content, a.runlog, a.gate, log),
		Metrics:     a.metrics,
		Checks:      a.healthChecks(),
	}, log)

	return a, nil
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

func retryPolicy(attempts int) retry.Policy {
	policy := retry.DefaultPolicy(platform.IsRetryable)
	policy.MaxAttempts = attempts
	return policy
}

// registerJobs wires the schedule config to handlers. Slot handlers record
// their own outcome in the run log and report nil to the scheduler; only
// panics and non-slot job failures flow through the error callback.
func (a *App) registerJobs() error {
	specs := a.config.Schedule.Specs()

	register := func(name string, run schedule.Handler) error {
		trigger, err := schedule.ParseSpec(specs[name])
		if err != nil {
			return fmt.Errorf("job %s: %w", name, err)
		}
		return a.scheduler.Register(&schedule.Job{Name: name, Trigger: trigger, Run: run})
	}

	for name, kind := range slotJobs {
		jobName, slotKind := name, kind
		if err := register(jobName, func(ctx context.Context) error {
			_, _ = a.pipeline.RunSlot(ctx, jobName, slotKind)
			return nil
		}); err != nil {
			return err
		}
	}

	if err := register("draft-generation", func(ctx context.Context) error {
		if !a.config.Review.Enabled {
			// Without review, slots generate on demand at publish time.
			return nil
		}
		return a.pipeline.GenerateDailyDrafts(ctx)
	}); err != nil {
		return err
	}

	return register("expire-sweep", func(ctx context.Context) error {
		_, err := a.gate.ExpireStale(ctx, a.config.Review.DraftTTL)
		return err
	})
}

// recordJobFailure is the scheduler's error callback. It writes a failure
// record for jobs that did not get to write their own (panics, draft
// generation, sweeps).
func (a *App) recordJobFailure(jobName string, err error) {
	record := domain.NewRunRecord(jobName, domain.OutcomeFailure).
		WithError("permanent", err.Error())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if appendErr := a.runlog.Append(ctx, record); appendErr != nil {
		a.logger.Error("failure record write failed",
			logger.String("job", jobName),
			logger.Error(appendErr))
	}
}

func (a *App) healthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error {
			return a.db.PingContext(ctx)
		},
	}
	if a.redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redis.CheckConnection(ctx, a.redisClient)
		}
	}
	return checks
}

// Run starts the scheduler and the HTTP API and blocks until a signal or a
// fatal server error. In-flight slot runs drain before return.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Run(ctx)
	}()

	schedulerDone := make(chan struct{})
	go func() {
		a.scheduler.Run(ctx)
		close(schedulerDone)
	}()

	a.logger.Info("publisher started",
		logger.String("address", a.config.Server.Address),
		logger.Bool("review_enabled", a.config.Review.Enabled),
		logger.Strings("jobs", a.scheduler.Jobs()))

	var runErr error
	serverDone := false
	select {
	case err := <-serverErr:
		serverDone = true
		if err != nil {
			a.logger.Error("http server failed", logger.Error(err))
			runErr = err
		}
		stop()
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	}

	<-schedulerDone
	if !serverDone {
		if err := <-serverErr; err != nil && runErr == nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}

	a.logger.Info("publisher stopped")
	return runErr
}

// RunJob fires one registered job immediately. Used by the operator CLI.
func (a *App) RunJob(ctx context.Context, name string) error {
	return a.scheduler.RunOnce(ctx, name)
}

// RunSlotNow runs the publish pipeline for one kind outside the schedule.
func (a *App) RunSlotNow(ctx context.Context, kind domain.Kind) (*domain.RunRecord, error) {
	return a.pipeline.RunSlot(ctx, "manual-"+string(kind), kind)
}

// ClearSlot removes a slot's published marker so an operator can force a
// re-run. Requires Redis.
func (a *App) ClearSlot(ctx context.Context, kind domain.Kind, day string) error {
	if a.guard == nil {
		return errors.New("slot guard is disabled, redis is not configured")
	}
	return a.guard.Clear(ctx, kind, day)
}

// Gate exposes review actions for the CLI.
func (a *App) Gate() *review.Gate { return a.gate }

// Content exposes the content repository for the CLI.
func (a *App) Content() *store.ContentRepository { return a.content }

// RunLog exposes the run log repository for the CLI.
func (a *App) RunLog() *store.RunLogRepository { return a.runlog }

// Logger returns the application logger.
func (a *App) Logger() logger.Logger { return a.logger }

// Close releases connections.
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis close failed", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("database close failed", logger.Error(err))
		}
	}
	return a.logger.Sync()
}
