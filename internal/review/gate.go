// Package review implements the draft approval gate that sits between
// content generation and publishing.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/siyinging/social-publisher/internal/domain"
	"github.com/siyinging/social-publisher/internal/logger"
	"github.com/siyinging/social-publisher/internal/metrics"
)

// ContentStore is the persistence surface the gate needs.
type ContentStore interface {
	GetByID(ctx context.Context, id string) (*domain.ContentItem, error)
	Approve(ctx context.Context, id, note string) error
	Reject(ctx context.Context, id, reason string) error
	ListDrafts(ctx context.Context, kind domain.Kind) ([]domain.ContentItem, error)
	ExpireUnreviewed(ctx context.Context, before time.Time) (int64, error)
}

// Checker inspects a draft before auto-approval. A non-empty reason holds
// the draft for a human; the gate never auto-rejects on a checker verdict.
type Checker func(item *domain.ContentItem) (holdReason string)

// DefaultChecker flags drafts with empty or over-long segments. Content
// limits are enforced again at compose time; this catches them before an
// operator wastes a review pass.
func DefaultChecker(maxSegmentLen int) Checker {
	return func(item *domain.ContentItem) string {
		if len(item.Segments) == 0 {
			return "no segments"
		}
		for i, seg := range item.Segments {
			if strings.TrimSpace(seg) == "" {
				return fmt.Sprintf("segment %d is blank", i)
			}
			if len([]rune(seg)) > maxSegmentLen {
				return fmt.Sprintf("segment %d exceeds %d characters", i, maxSegmentLen)
			}
		}
		return ""
	}
}

// Gate performs review actions against the content store.
type Gate struct {
	store   ContentStore
	checker Checker
	metrics *metrics.Metrics
	logger  logger.Logger
}

// NewGate creates a review gate. checker may be nil to disable auto-approval
// screening; m may be nil.
func NewGate(store ContentStore, checker Checker, m *metrics.Metrics, log logger.Logger) *Gate {
	return &Gate{store: store, checker: checker, metrics: m, logger: log}
}

func (g *Gate) countActions(action string, n float64) {
	if g.metrics != nil {
		g.metrics.ReviewActions.WithLabelValues(action).Add(n)
	}
}

// Approve marks a draft approved with an optional note.
func (g *Gate) Approve(ctx context.Context, id, note string) error {
	if err := g.store.Approve(ctx, id, note); err != nil {
		return err
	}
	g.countActions("approve", 1)
	g.logger.Info("draft approved", logger.String("item_id", id))
	return nil
}

// Reject marks a draft rejected. A reason is required so the run log and
// the item itself record why content was dropped.
func (g *Gate) Reject(ctx context.Context, id, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: rejection requires a reason", domain.ErrInvalidContent)
	}
	if err := g.store.Reject(ctx, id, reason); err != nil {
		return err
	}
	g.countActions("reject", 1)
	g.logger.Info("draft rejected",
		logger.String("item_id", id),
		logger.String("reason", reason))
	return nil
}

// BatchResult summarizes one auto-approval sweep.
type BatchResult struct {
	Approved int
	Held     []HeldDraft
}

// HeldDraft is a draft the checker declined to auto-approve.
type HeldDraft struct {
	ItemID string
	Reason string
}

// AutoApprove sweeps pending drafts of the given kind ("" for all) and
// approves every draft the checker passes. Flagged drafts stay in Draft for
// a human decision; the sweep never rejects.
func (g *Gate) AutoApprove(ctx context.Context, kind domain.Kind) (*BatchResult, error) {
	drafts, err := g.store.ListDrafts(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}

	result := &BatchResult{}
	for i := range drafts {
		draft := &drafts[i]
		if g.checker != nil {
			if reason := g.checker(draft); reason != "" {
				result.Held = append(result.Held, HeldDraft{ItemID: draft.ID, Reason: reason})
				g.logger.Warn("draft held for manual review",
					logger.String("item_id", draft.ID),
					logger.String("reason", reason))
				continue
			}
		}
		if err := g.store.Approve(ctx, draft.ID, "auto-approved"); err != nil {
			return result, fmt.Errorf("approve %s: %w", draft.ID, err)
		}
		g.countActions("auto_approve", 1)
		result.Approved++
	}

	g.logger.Info("auto-approval sweep finished",
		logger.Int("approved", result.Approved),
		logger.Int("held", len(result.Held)))
	return result, nil
}

// ExpireStale expires every draft older than maxAge and returns the count.
func (g *Gate) ExpireStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	n, err := g.store.ExpireUnreviewed(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.countActions("expire", float64(n))
		g.logger.Info("stale drafts expired", logger.Int64("count", n))
	}
	return n, nil
}
