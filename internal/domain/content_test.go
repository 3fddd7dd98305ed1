package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/siyinging/social-publisher/internal/domain"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		name string
		from domain.State
		to   domain.State
		want bool
	}{
		{"draft to approved", domain.StateDraft, domain.StateApproved, true},
		{"draft to rejected", domain.StateDraft, domain.StateRejected, true},
		{"draft to expired", domain.StateDraft, domain.StateExpired, true},
		{"draft to published", domain.StateDraft, domain.StatePublished, false},
		{"approved to published", domain.StateApproved, domain.StatePublished, true},
		{"approved to expired", domain.StateApproved, domain.StateExpired, true},
		{"approved to rejected", domain.StateApproved, domain.StateRejected, false},
		{"rejected is terminal", domain.StateRejected, domain.StateApproved, false},
		{"published is terminal", domain.StatePublished, domain.StateDraft, false},
		{"expired is terminal", domain.StateExpired, domain.StateApproved, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := domain.CanTransition(tc.from, tc.to); got != tc.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestContentItem_Transition_InvalidLeavesStateUnchanged(t *testing.T) {
	item, err := domain.NewContentItem(domain.KindHeadline, time.Now(), []string{"hello"})
	if err != nil {
		t.Fatalf("NewContentItem: %v", err)
	}

	err = item.Transition(domain.StatePublished)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("Transition error = %v, want ErrInvalidState", err)
	}
	if item.State != domain.StateDraft {
		t.Errorf("State = %s, want draft after failed transition", item.State)
	}
	if item.PublishedAt != nil {
		t.Error("PublishedAt set after failed transition")
	}
}

func TestContentItem_Transition_StampsTimestamps(t *testing.T) {
	item, err := domain.NewContentItem(domain.KindThread, time.Now(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("NewContentItem: %v", err)
	}

	if err := item.Transition(domain.StateApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if item.ReviewedAt == nil {
		t.Error("ReviewedAt not set after approval")
	}

	if err := item.Transition(domain.StatePublished); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if item.PublishedAt == nil {
		t.Error("PublishedAt not set after publish")
	}
}

func TestNewContentItem_Validation(t *testing.T) {
	testCases := []struct {
		name     string
		kind     domain.Kind
		segments []string
		wantErr  error
	}{
		{"no segments", domain.KindHeadline, nil, domain.ErrInvalidContent},
		{"empty segment", domain.KindThread, []string{"a", ""}, domain.ErrInvalidContent},
		{"unknown kind", domain.Kind("bogus"), []string{"a"}, domain.ErrInvalidKind},
		{"valid", domain.KindHeadline, []string{"a"}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			item, err := domain.NewContentItem(tc.kind, time.Now(), tc.segments)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if item.State != domain.StateDraft {
				t.Errorf("State = %s, want draft", item.State)
			}
			if item.PostIDs == nil || item.SourceRefs == nil {
				t.Error("slice fields should be initialized, not nil")
			}
		})
	}
}

func TestContentItem_Resume(t *testing.T) {
	item, err := domain.NewContentItem(domain.KindThread, time.Now(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("NewContentItem: %v", err)
	}

	if got := item.NextSegment(); got != 0 {
		t.Errorf("NextSegment() = %d, want 0", got)
	}

	item.PostIDs = append(item.PostIDs, "100", "101")
	if got := item.NextSegment(); got != 2 {
		t.Errorf("NextSegment() = %d, want 2", got)
	}
	if got := item.LastPostID(); got != "101" {
		t.Errorf("LastPostID() = %s, want 101", got)
	}
	if item.FullyPublished() {
		t.Error("FullyPublished() = true with one segment remaining")
	}

	item.PostIDs = append(item.PostIDs, "102")
	if !item.FullyPublished() {
		t.Error("FullyPublished() = false with all segments recorded")
	}
}
