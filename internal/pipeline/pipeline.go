// Package pipeline orchestrates one publishing slot from content selection
// through platform delivery and run-log recording.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/siyinging/social-publisher/internal/compose"
	"github.com/siyinging/social-publisher/internal/domain"
	"github.com/siyinging/social-publisher/internal/generate"
	"github.com/siyinging/social-publisher/internal/logger"
	"github.com/siyinging/social-publisher/internal/metrics"
	"github.com/siyinging/social-publisher/internal/platform"
	"github.com/siyinging/social-publisher/internal/retry"
)

// ContentStore is the persistence surface the pipeline needs.
type ContentStore interface {
	CreateDraft(ctx context.Context, item *domain.ContentItem) (*domain.ContentItem, bool, error)
	Approve(ctx context.Context, id, note string) error
	MarkPublished(ctx context.Context, id string) error
	AppendPostID(ctx context.Context, id, postID string) error
	ClaimForPublish(ctx context.Context, kind domain.Kind, day string) (*domain.ContentItem, error)
	ReleaseClaim(ctx context.Context, id string) error
	ExpireUnreviewed(ctx context.Context, before time.Time) (int64, error)
}

// RunLog records job executions.
type RunLog interface {
	Append(ctx context.Context, record *domain.RunRecord) error
}

// SlotGuard is the fast already-published check. May be backed by Redis; a
// nil guard disables the pre-check and the store decides alone.
type SlotGuard interface {
	HasPublished(ctx context.Context, kind domain.Kind, day string) bool
	MarkPublished(ctx context.Context, kind domain.Kind, day string) error
}

// Pipeline runs publishing slots and draft generation.
type Pipeline struct {
	store     ContentStore
	runlog    RunLog
	guard     SlotGuard
	generator generate.Generator
	adapter   platform.Adapter
	metrics   *metrics.Metrics
	logger    logger.Logger
	tracer    trace.Tracer

	// reviewEnabled gates publishing on human approval. When off, freshly
	// generated content is approved in place and published immediately.
	reviewEnabled bool

	// draftTTL is the review deadline. Drafts older than this are expired
	// ahead of every publish pass; unreviewed content never auto-publishes.
	draftTTL time.Duration
}

// Options configures a Pipeline.
type Options struct {
	Store         ContentStore
	RunLog        RunLog
	Guard         SlotGuard
	Generator     generate.Generator
	Adapter       platform.Adapter
	Metrics       *metrics.Metrics
	Logger        logger.Logger
	ReviewEnabled bool
	DraftTTL      time.Duration
}

// New creates a pipeline. Store, RunLog, Generator, Adapter and Logger are
// required.
func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil || opts.RunLog == nil || opts.Generator == nil ||
		opts.Adapter == nil || opts.Logger == nil {
		return nil, errors.New("pipeline requires store, run log, generator, adapter and logger")
	}
	return &Pipeline{
		store:         opts.Store,
		runlog:        opts.RunLog,
		guard:         opts.Guard,
		generator:     opts.Generator,
		adapter:       opts.Adapter,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		tracer:        otel.Tracer("publish-pipeline"),
		reviewEnabled: opts.ReviewEnabled,
		draftTTL:      opts.DraftTTL,
	}, nil
}

// RunSlot executes one publishing slot for the given kind. The returned
// record is already appended to the run log; err carries the publish
// failure, if any, for the caller's error handling.
func (p *Pipeline) RunSlot(ctx context.Context, jobName string, kind domain.Kind) (*domain.RunRecord, error) {
	start := time.Now()
	day := start.UTC().Format(domain.SlotDayFormat)

	ctx, span := p.tracer.Start(ctx, "slot.run",
		trace.WithAttributes(
			attribute.String("job", jobName),
			attribute.String("kind", string(kind)),
			attribute.String("day", day),
		))
	defer span.End()

	record, err := p.runSlot(ctx, jobName, kind, day)

	if p.metrics != nil {
		p.metrics.SlotRuns.WithLabelValues(jobName, string(record.Outcome)).Inc()
		p.metrics.SlotDuration.WithLabelValues(jobName).Observe(time.Since(start).Seconds())
	}
	if appendErr := p.runlog.Append(ctx, record); appendErr != nil {
		p.logger.Error("run record write failed",
			logger.String("job", jobName),
			logger.Error(appendErr))
		if err == nil {
			err = appendErr
		}
	}
	return record, err
}

func (p *Pipeline) runSlot(ctx context.Context, jobName string, kind domain.Kind, day string) (*domain.RunRecord, error) {
	if p.guard != nil && p.guard.HasPublished(ctx, kind, day) {
		p.logger.Info("slot already published today, skipping",
			logger.String("job", jobName),
			logger.String("kind", string(kind)))
		return domain.NewRunRecord(jobName, domain.OutcomeSkipped), nil
	}

	// Drafts past their review deadline expire before the publish pass so
	// stale unreviewed content cannot slip into this slot.
	if p.draftTTL > 0 {
		cutoff := time.Now().UTC().Add(-p.draftTTL)
		if n, expireErr := p.store.ExpireUnreviewed(ctx, cutoff); expireErr != nil {
			p.logger.Warn("pre-slot expiry sweep failed", logger.Error(expireErr))
		} else if n > 0 {
			p.logger.Info("stale drafts expired before slot", logger.Int64("count", n))
		}
	}

	item, err := p.selectItem(ctx, kind, day)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.Info("no approved content for slot, skipping",
			logger.String("job", jobName),
			logger.String("kind", string(kind)))
		return domain.NewRunRecord(jobName, domain.OutcomeSkipped), nil
	}
	if err != nil {
		kindLabel, detail := classify(err)
		return domain.NewRunRecord(jobName, domain.OutcomeFailure).
			WithError(kindLabel, detail), err
	}

	if err := p.publish(ctx, item); err != nil {
		if releaseErr := p.store.ReleaseClaim(ctx, item.ID); releaseErr != nil {
			p.logger.Error("claim release failed",
				logger.String("item_id", item.ID),
				logger.Error(releaseErr))
		}

		kindLabel, detail := classify(err)
		record := domain.NewRunRecord(jobName, domain.OutcomeFailure).
			WithItem(item.ID).
			WithError(kindLabel, detail)
		var segErr *compose.SegmentError
		if errors.As(err, &segErr) {
			record.WithSegment(segErr.Index)
		}
		return record, err
	}

	if p.guard != nil {
		// Best effort: the store already holds the durable published state.
		if guardErr := p.guard.MarkPublished(ctx, kind, day); guardErr != nil {
			p.logger.Warn("slot guard mark failed", logger.Error(guardErr))
		}
	}

	p.logger.Info("slot published",
		logger.String("job", jobName),
		logger.String("item_id", item.ID),
		logger.Int("segments", len(item.Segments)))
	return domain.NewRunRecord(jobName, domain.OutcomeSuccess).WithItem(item.ID), nil
}

// selectItem claims the content to publish. With review on, only an
// operator-approved item qualifies. With review off, a missing item is
// generated, stored and approved in place first.
func (p *Pipeline) selectItem(ctx context.Context, kind domain.Kind, day string) (*domain.ContentItem, error) {
	item, err := p.store.ClaimForPublish(ctx, kind, day)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return item, err
	}
	if p.reviewEnabled {
		return nil, err
	}

	draft, _, err := p.GenerateDraft(ctx, kind, day)
	if err != nil {
		return nil, err
	}
	if draft.State == domain.StateDraft {
		if err := p.store.Approve(ctx, draft.ID, "review disabled"); err != nil &&
			!errors.Is(err, domain.ErrInvalidState) {
			return nil, err
		}
	}
	return p.store.ClaimForPublish(ctx, kind, day)
}

// publish composes and executes the item's plan, persisting every post id
// before the next network call so a crash mid-thread stays resumable.
func (p *Pipeline) publish(ctx context.Context, item *domain.ContentItem) error {
	ctx, span := p.tracer.Start(ctx, "slot.publish",
		trace.WithAttributes(
			attribute.String("item_id", item.ID),
			attribute.String("kind", string(item.Kind)),
			attribute.Int("segments", len(item.Segments)),
		))
	defer span.End()

	if item.FullyPublished() {
		// Previous run posted everything but died before the final state
		// flip. Nothing left to send.
		return p.store.MarkPublished(ctx, item.ID)
	}

	plan, err := p.planFor(item)
	if err != nil {
		return err
	}

	opts := compose.ExecOptions{
		StartIndex: item.NextSegment(),
		ReplyTo:    item.LastPostID(),
		OnPosted: func(_ int, postID string) error {
			if p.metrics != nil {
				p.metrics.SegmentsPosted.Inc()
			}
			return p.store.AppendPostID(ctx, item.ID, postID)
		},
	}

	if _, err := compose.Execute(ctx, plan, p.adapter, opts); err != nil {
		return err
	}
	return p.store.MarkPublished(ctx, item.ID)
}

func (p *Pipeline) planFor(item *domain.ContentItem) (compose.Plan, error) {
	if item.Kind == domain.KindRepost && item.NextSegment() == 0 {
		if len(item.SourceRefs) == 0 {
			return compose.Plan{}, fmt.Errorf("%w: repost item %s has no source post",
				domain.ErrInvalidContent, item.ID)
		}
		return compose.ComposeQuote(item.SourceRefs[0], item.Segments[0])
	}
	return compose.Compose(item.Segments)
}

// GenerateDraft produces and stores a draft for one slot. Idempotent per
// (kind, day): an existing active item is returned with created false.
func (p *Pipeline) GenerateDraft(ctx context.Context, kind domain.Kind, day string) (*domain.ContentItem, bool, error) {
	res, err := p.generator.Generate(ctx, generate.Request{Kind: kind, Day: day})
	if err != nil {
		return nil, false, err
	}

	slotDay, err := time.Parse(domain.SlotDayFormat, day)
	if err != nil {
		return nil, false, fmt.Errorf("parse slot day %q: %w", day, err)
	}

	item, err := domain.NewContentItem(kind, slotDay, res.Segments)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	item.Topic = res.Topic
	if len(res.SourceRefs) > 0 {
		item.SourceRefs = res.SourceRefs
	}

	stored, created, err := p.store.CreateDraft(ctx, item)
	if err != nil {
		return nil, false, err
	}
	if created {
		if p.metrics != nil {
			p.metrics.DraftsGenerated.WithLabelValues(string(kind)).Inc()
		}
		p.logger.Info("draft generated",
			logger.String("item_id", stored.ID),
			logger.String("kind", string(kind)))
	}
	return stored, created, nil
}

// GenerateDailyDrafts produces drafts for every slot of the current day.
// WeeklyReview is only drafted on Sundays, matching its publish schedule.
// Failures are collected per kind so one bad generator response does not
// block the other slots.
func (p *Pipeline) GenerateDailyDrafts(ctx context.Context) error {
	now := time.Now().UTC()
	day := now.Format(domain.SlotDayFormat)

	var errs []error
	for _, kind := range domain.Kinds() {
		if kind == domain.KindWeeklyReview && now.Weekday() != time.Sunday {
			continue
		}
		if _, _, err := p.GenerateDraft(ctx, kind, day); err != nil {
			p.logger.Error("draft generation failed",
				logger.String("kind", string(kind)),
				logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// classify maps a slot failure to the run-log error taxonomy.
func classify(err error) (kind, detail string) {
	switch {
	case errors.Is(err, domain.ErrGeneration):
		return "generation", err.Error()
	case IsTransient(err):
		return "transient", err.Error()
	default:
		return "permanent", err.Error()
	}
}

// IsTransient reports whether a slot failure is worth retrying later. Used
// by callers to pick exit codes and alerting severity.
func IsTransient(err error) bool {
	return platform.IsRetryable(err) ||
		errors.Is(err, retry.ErrMaxAttemptsExceeded) ||
		errors.Is(err, retry.ErrContextCancelled)
}
