package domain

import "time"

// Outcome is the result of one job execution attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// RunRecord is one append-only entry in the per-day run log. Records are
// never mutated after write.
type RunRecord struct {
	ID            string    `db:"id"              json:"id"`
	JobName       string    `db:"job_name"        json:"job_name"`
	Day           string    `db:"day"             json:"day"` // YYYY-MM-DD, UTC
	Timestamp     time.Time `db:"ts"              json:"timestamp"`
	Outcome       Outcome   `db:"outcome"         json:"outcome"`
	ContentItemID *string   `db:"content_item_id" json:"content_item_id,omitempty"`
	SegmentIndex  *int      `db:"segment_index"   json:"segment_index,omitempty"`
	ErrorKind     *string   `db:"error_kind"      json:"error_kind,omitempty"`
	ErrorDetail   *string   `db:"error_detail"    json:"error_detail,omitempty"`
}

// NewRunRecord creates a run record stamped with the current UTC time.
func NewRunRecord(jobName string, outcome Outcome) *RunRecord {
	now := time.Now().UTC()
	return &RunRecord{
		JobName:   jobName,
		Day:       now.Format(SlotDayFormat),
		Timestamp: now,
		Outcome:   outcome,
	}
}

// WithItem attaches the content item the record refers to.
func (r *RunRecord) WithItem(id string) *RunRecord {
	r.ContentItemID = &id
	return r
}

// WithError attaches error classification and detail.
func (r *RunRecord) WithError(kind, detail string) *RunRecord {
	r.ErrorKind = &kind
	r.ErrorDetail = &detail
	return r
}

// WithSegment attaches the failing segment index.
func (r *RunRecord) WithSegment(i int) *RunRecord {
	r.SegmentIndex = &i
	return r
}
