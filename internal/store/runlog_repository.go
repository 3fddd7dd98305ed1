package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/siyinging/social-publisher/internal/domain"
)

// RunLogRepository is an append-only log of job executions. Records are
// inserted once and never updated.
type RunLogRepository struct {
	db *sqlx.DB
}

// NewRunLogRepository creates a new repository.
func NewRunLogRepository(db *sqlx.DB) *RunLogRepository {
	return &RunLogRepository{db: db}
}

// Append writes one run record.
func (r *RunLogRepository) Append(ctx context.Context, record *domain.RunRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	query := `
		INSERT INTO run_records (id, job_name, day, ts, outcome,
			content_item_id, segment_index, error_kind, error_detail)
		VALUES (:id, :job_name, :day, :ts, :outcome,
			:content_item_id, :segment_index, :error_kind, :error_detail)`

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("append run record: %w", err)
	}
	return nil
}

// ListByDay returns all records for a day in execution order.
func (r *RunLogRepository) ListByDay(ctx context.Context, day string) ([]domain.RunRecord, error) {
	var records []domain.RunRecord
	err := r.db.SelectContext(ctx, &records,
		`SELECT id, job_name, day, ts, outcome, content_item_id, segment_index,
			error_kind, error_detail
		FROM run_records
		WHERE day = $1
		ORDER BY ts`, day)
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	return records, nil
}

// ListByJob returns the most recent records for one job, newest first.
func (r *RunLogRepository) ListByJob(ctx context.Context, jobName string, limit int) ([]domain.RunRecord, error) {
	var records []domain.RunRecord
	err := r.db.SelectContext(ctx, &records,
		`SELECT id, job_name, day, ts, outcome, content_item_id, segment_index,
			error_kind, error_detail
		FROM run_records
		WHERE job_name = $1
		ORDER BY ts DESC
		LIMIT $2`, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("list run records for job: %w", err)
	}
	return records, nil
}

// OutcomeCounts returns per-outcome totals for one day.
func (r *RunLogRepository) OutcomeCounts(ctx context.Context, day string) (map[domain.Outcome]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM run_records WHERE day = $1 GROUP BY outcome`, day)
	if err != nil {
		return nil, fmt.Errorf("run outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Outcome]int64)
	for rows.Next() {
		var outcome domain.Outcome
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
