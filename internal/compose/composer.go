// Package compose turns ordered content segments into a plan of linked
// platform posts and executes that plan through an adapter.
package compose

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/siyinging/social-publisher/internal/platform"
)

// MaxPostLength is the platform's per-post character limit.
const MaxPostLength = 280

// ErrEmptyPlan is returned when a plan has no segments.
var ErrEmptyPlan = errors.New("post plan has no segments")

// Plan is an ordered sequence of post texts. Segment 0 becomes a top-level
// post (or a quote of QuoteTarget when set); every later segment is posted
// as a reply to the actual post id obtained for the segment before it.
type Plan struct {
	Segments    []string
	QuoteTarget string
}

// SegmentError reports which segment of a plan failed and why. Segments
// before Index were posted and are not rolled back.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// Compose builds a plan from ordered segments. Over-long segments are
// truncated to the platform limit with a trailing ellipsis. A single
// segment degenerates to one top-level post with no reply linkage.
func Compose(segments []string) (Plan, error) {
	if len(segments) == 0 {
		return Plan{}, ErrEmptyPlan
	}
	out := make([]string, len(segments))
	for i, seg := range segments {
		out[i] = truncate(seg)
	}
	return Plan{Segments: out}, nil
}

// ComposeQuote builds a single-post plan quoting an existing post.
func ComposeQuote(targetPostID, comment string) (Plan, error) {
	plan, err := Compose([]string{comment})
	if err != nil {
		return Plan{}, err
	}
	plan.QuoteTarget = targetPostID
	return plan, nil
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxPostLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxPostLength-3]) + "..."
}

// ExecOptions controls plan execution.
type ExecOptions struct {
	// StartIndex is the first segment to post; earlier segments are
	// assumed already published (resume).
	StartIndex int
	// ReplyTo is the post id the segment at StartIndex chains to. Must be
	// set when StartIndex > 0.
	ReplyTo string
	// OnPosted, if non-nil, is invoked after each successful segment with
	// its index and the returned post id. Used to persist partial
	// progress before the next network call.
	OnPosted func(index int, postID string) error
}

// Execute posts the plan's segments strictly in order. Each reply is bound
// to the actual id returned for the previous segment, so execution is
// sequential by construction. On failure at segment i a *SegmentError is
// returned together with the ids obtained so far; nothing is rolled back.
func Execute(ctx context.Context, plan Plan, adapter platform.Adapter, opts ExecOptions) ([]string, error) {
	if len(plan.Segments) == 0 {
		return nil, ErrEmptyPlan
	}
	if opts.StartIndex > 0 && opts.ReplyTo == "" {
		return nil, fmt.Errorf("resume from segment %d requires the previous post id", opts.StartIndex)
	}

	posted := make([]string, 0, len(plan.Segments)-opts.StartIndex)
	replyTo := opts.ReplyTo

	for i := opts.StartIndex; i < len(plan.Segments); i++ {
		text := plan.Segments[i]

		var id string
		var err error
		switch {
		case replyTo != "":
			id, err = adapter.Reply(ctx, replyTo, text)
		case plan.QuoteTarget != "":
			id, err = adapter.Quote(ctx, plan.QuoteTarget, text)
		default:
			id, err = adapter.Post(ctx, text)
		}
		if err != nil {
			return posted, &SegmentError{Index: i, Err: err}
		}

		posted = append(posted, id)
		replyTo = id

		if opts.OnPosted != nil {
			if cbErr := opts.OnPosted(i, id); cbErr != nil {
				return posted, &SegmentError{Index: i, Err: fmt.Errorf("record post id: %w", cbErr)}
			}
		}
	}

	return posted, nil
}
