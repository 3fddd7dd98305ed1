// Package domain contains the core domain models for the social publisher.
package domain

import (
	"fmt"
	"time"
)

// Kind identifies what sort of content a ContentItem carries and which
// generation handler produces it.
type Kind string

const (
	KindHeadline     Kind = "headline"
	KindThread       Kind = "thread"
	KindRepost       Kind = "repost"
	KindWeeklyReview Kind = "weekly_review"
	KindFeature      Kind = "feature"
)

// Kinds lists all known content kinds.
func Kinds() []Kind {
	return []Kind{KindHeadline, KindThread, KindRepost, KindWeeklyReview, KindFeature}
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidKind, s)
}

// State represents the review lifecycle state of a ContentItem.
type State string

const (
	StateDraft     State = "draft"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StatePublished State = "published"
	StateExpired   State = "expired"
)

// transitions lists the allowed state-machine edges. Rejected, Published and
// Expired are terminal.
var transitions = map[State][]State{
	StateDraft:    {StateApproved, StateRejected, StateExpired},
	StateApproved: {StatePublished, StateExpired},
}

// CanTransition reports whether moving from one state to another is a legal
// edge of the review state machine.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ContentItem is a unit of content moving through the draft/review/publish
// lifecycle. Body segments are ordered; single-post kinds carry exactly one
// segment. PostIDs is append-only and records the platform id for each
// published segment, in order.
type ContentItem struct {
	ID          string     `db:"id"            json:"id"`
	Kind        Kind       `db:"kind"          json:"kind"`
	SlotDay     string     `db:"slot_day"      json:"slot_day"` // YYYY-MM-DD, UTC
	Segments    []string   `db:"segments"      json:"segments"`
	Topic       string     `db:"topic"         json:"topic"`
	SourceRefs  []string   `db:"source_refs"   json:"source_refs"`
	State       State      `db:"state"         json:"state"`
	ReviewNote  *string    `db:"review_note"   json:"review_note,omitempty"`
	PostIDs     []string   `db:"post_ids"      json:"post_ids"`
	CreatedAt   time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"    json:"updated_at"`
	ReviewedAt  *time.Time `db:"reviewed_at"   json:"reviewed_at,omitempty"`
	PublishedAt *time.Time `db:"published_at"  json:"published_at,omitempty"`
}

// SlotDayFormat is the layout for SlotDay values.
const SlotDayFormat = "2006-01-02"

// NewContentItem creates a content item in Draft state with validation.
func NewContentItem(kind Kind, day time.Time, segments []string) (*ContentItem, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: at least one segment is required", ErrInvalidContent)
	}
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: segment %d is empty", ErrInvalidContent, i)
		}
	}

	now := time.Now().UTC()
	return &ContentItem{
		Kind:       kind,
		SlotDay:    day.UTC().Format(SlotDayFormat),
		Segments:   segments,
		SourceRefs: []string{}, // never nil
		PostIDs:    []string{},
		State:      StateDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Transition moves the item to a new state, enforcing the state machine.
// The item is left untouched on error.
func (c *ContentItem) Transition(to State) error {
	if !CanTransition(c.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, c.State, to)
	}
	now := time.Now().UTC()
	c.State = to
	c.UpdatedAt = now
	switch to {
	case StateApproved, StateRejected:
		c.ReviewedAt = &now
	case StatePublished:
		c.PublishedAt = &now
	}
	return nil
}

// NextSegment returns the index of the first segment that has not been
// published yet. For a fresh item this is 0; for a partially published item
// it points past the recorded post ids, enabling resume.
func (c *ContentItem) NextSegment() int {
	return len(c.PostIDs)
}

// FullyPublished reports whether every segment has a recorded post id.
func (c *ContentItem) FullyPublished() bool {
	return len(c.Segments) > 0 && len(c.PostIDs) == len(c.Segments)
}

// LastPostID returns the platform id of the most recently published segment,
// or "" if nothing has been published.
func (c *ContentItem) LastPostID() string {
	if len(c.PostIDs) == 0 {
		return ""
	}
	return c.PostIDs[len(c.PostIDs)-1]
}
