package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/siyinging/social-publisher/internal/domain"
)

// contentSelectList is the column list for SELECT/RETURNING on
// content_items (single source for schema changes).
const contentSelectList = `id, kind, slot_day, segments, topic, source_refs,
			state, review_note, post_ids, created_at, updated_at,
			reviewed_at, published_at`

// staleClaimAge is how long a publish claim holds before another run may
// take the item over (covers a crash mid-publish).
const staleClaimAge = "10 minutes"

// ContentRepository manages ContentItem rows. All state transitions are
// guarded in SQL with the expected source state, so concurrent callers on
// the same id are serialized by the database and an illegal transition
// never mutates the row.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates a new repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// CreateDraft inserts a draft, idempotent per (kind, slot_day): when an
// active item (draft or approved) already exists for the slot, the existing
// item is returned and created is false.
func (r *ContentRepository) CreateDraft(ctx context.Context, item *domain.ContentItem) (*domain.ContentItem, bool, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	query := `
		INSERT INTO content_items (id, kind, slot_day, segments, topic, source_refs,
			state, post_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (kind, slot_day) WHERE state IN ('draft', 'approved') DO NOTHING
		RETURNING ` + contentSelectList

	row := r.db.QueryRowxContext(ctx, query,
		item.ID, item.Kind, item.SlotDay,
		pq.Array(item.Segments), item.Topic, pq.Array(item.SourceRefs),
		item.State, pq.Array(item.PostIDs), item.CreatedAt, item.UpdatedAt,
	)

	created, err := scanContentItem(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("create draft: %w", err)
	}

	// Conflict: an active item for this slot already exists.
	existing, err := r.activeForSlot(ctx, item.Kind, item.SlotDay)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *ContentRepository) activeForSlot(ctx context.Context, kind domain.Kind, day string) (*domain.ContentItem, error) {
	query := `
		SELECT ` + contentSelectList + `
		FROM content_items
		WHERE kind = $1 AND slot_day = $2 AND state IN ('draft', 'approved')
		ORDER BY created_at
		LIMIT 1`

	item, err := scanContentItem(r.db.QueryRowxContext(ctx, query, kind, day))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch active item for slot: %w", err)
	}
	return item, nil
}

// GetByID fetches a single item.
func (r *ContentRepository) GetByID(ctx context.Context, id string) (*domain.ContentItem, error) {
	query := `SELECT ` + contentSelectList + ` FROM content_items WHERE id = $1`
	item, err := scanContentItem(r.db.QueryRowxContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content item: %w", err)
	}
	return item, nil
}

// transition applies a guarded state change. Returns ErrNotFound when the
// id does not exist and ErrInvalidState when the item is not in the
// expected source state; the row is untouched in both cases.
func (r *ContentRepository) transition(ctx context.Context, id string, from, to domain.State, set string, args ...any) error {
	query := fmt.Sprintf(`
		UPDATE content_items
		SET state = '%s', updated_at = NOW()%s
		WHERE id = $1 AND state = '%s'`, to, set, from)

	result, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("transition to %s: %w", to, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Distinguish missing from wrong-state.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: item %s is not %s", domain.ErrInvalidState, id, from)
}

// Approve moves a Draft to Approved with an optional reviewer note.
func (r *ContentRepository) Approve(ctx context.Context, id, note string) error {
	return r.transition(ctx, id, domain.StateDraft, domain.StateApproved,
		", review_note = NULLIF($2, ''), reviewed_at = NOW()", note)
}

// Reject moves a Draft to Rejected with a reason.
func (r *ContentRepository) Reject(ctx context.Context, id, reason string) error {
	return r.transition(ctx, id, domain.StateDraft, domain.StateRejected,
		", review_note = $2, reviewed_at = NOW()", reason)
}

// MarkPublished moves an Approved item to Published.
func (r *ContentRepository) MarkPublished(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.StateApproved, domain.StatePublished,
		", published_at = NOW(), claimed_at = NULL")
}

// ExpireUnreviewed expires every Draft created before the deadline and
// returns how many were expired. Idempotent: already-expired items are not
// matched again.
func (r *ContentRepository) ExpireUnreviewed(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE content_items
		SET state = 'expired', updated_at = NOW()
		WHERE state = 'draft' AND created_at < $1`

	result, err := r.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire unreviewed: %w", err)
	}
	return result.RowsAffected()
}

// ClaimForPublish picks one Approved item of the given kind and day and
// claims it for this run. SKIP LOCKED plus the stale-claim window keep two
// runs off the same item while letting a crashed run's item be reclaimed.
// Returns ErrNotFound when nothing is eligible.
func (r *ContentRepository) ClaimForPublish(ctx context.Context, kind domain.Kind, day string) (*domain.ContentItem, error) {
	query := `
		UPDATE content_items
		SET claimed_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM content_items
			WHERE kind = $1 AND slot_day = $2 AND state = 'approved'
			  AND (claimed_at IS NULL OR claimed_at < NOW() - INTERVAL '` + staleClaimAge + `')
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + contentSelectList

	item, err := scanContentItem(r.db.QueryRowxContext(ctx, query, kind, day))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim for publish: %w", err)
	}
	return item, nil
}

// ReleaseClaim clears a publish claim after a failed run so the item can be
// retried without waiting out the stale window.
func (r *ContentRepository) ReleaseClaim(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE content_items SET claimed_at = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// AppendPostID records the platform id for one published segment.
// Append-only; only valid while the item is still Approved (mid-publish).
func (r *ContentRepository) AppendPostID(ctx context.Context, id, postID string) error {
	query := `
		UPDATE content_items
		SET post_ids = array_append(post_ids, $2), updated_at = NOW()
		WHERE id = $1 AND state = 'approved'`

	result, err := r.db.ExecContext(ctx, query, id, postID)
	if err != nil {
		return fmt.Errorf("append post id: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: item %s is not approved", domain.ErrInvalidState, id)
	}
	return nil
}

// ListByState returns items in a given state, newest first.
func (r *ContentRepository) ListByState(ctx context.Context, state domain.State, limit int) ([]domain.ContentItem, error) {
	query := `
		SELECT ` + contentSelectList + `
		FROM content_items
		WHERE state = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, state, limit)
	if err != nil {
		return nil, fmt.Errorf("list by state: %w", err)
	}
	defer rows.Close()
	return scanContentItems(rows)
}

// ListByDay returns all items for a slot day, oldest first.
func (r *ContentRepository) ListByDay(ctx context.Context, day string) ([]domain.ContentItem, error) {
	query := `
		SELECT ` + contentSelectList + `
		FROM content_items
		WHERE slot_day = $1
		ORDER BY created_at`

	rows, err := r.db.QueryxContext(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("list by day: %w", err)
	}
	defer rows.Close()
	return scanContentItems(rows)
}

// ListDrafts returns Draft items matching an optional kind, oldest first.
func (r *ContentRepository) ListDrafts(ctx context.Context, kind domain.Kind) ([]domain.ContentItem, error) {
	query := `
		SELECT ` + contentSelectList + `
		FROM content_items
		WHERE state = 'draft' AND ($1 = '' OR kind = $1)
		ORDER BY created_at`

	rows, err := r.db.QueryxContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()
	return scanContentItems(rows)
}

// StateCounts returns the number of items per state.
func (r *ContentRepository) StateCounts(ctx context.Context) (map[domain.State]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM content_items GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("state counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.State]int64)
	for rows.Next() {
		var state domain.State
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentItem(row rowScanner) (*domain.ContentItem, error) {
	var item domain.ContentItem
	var segments, sourceRefs, postIDs pq.StringArray

	err := row.Scan(
		&item.ID, &item.Kind, &item.SlotDay, &segments, &item.Topic, &sourceRefs,
		&item.State, &item.ReviewNote, &postIDs, &item.CreatedAt, &item.UpdatedAt,
		&item.ReviewedAt, &item.PublishedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Segments = segments
	item.SourceRefs = sourceRefs
	item.PostIDs = postIDs
	return &item, nil
}

func scanContentItems(rows *sqlx.Rows) ([]domain.ContentItem, error) {
	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
