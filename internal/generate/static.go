package generate

import (
	"context"
	"fmt"
	"sync"

	"github.com/siyinging/social-publisher/internal/domain"
)

// StaticGenerator serves canned content per kind. It backs slots when the
// generation service is down so a scheduled slot still has something to
// publish after review.
type StaticGenerator struct {
	library map[domain.Kind][][]string

	// mu guards cursor; one shared instance serves concurrent slot jobs.
	mu     sync.Mutex
	cursor map[domain.Kind]int
}

// NewStaticGenerator creates a generator over a canned content library.
// Entries rotate round-robin per kind across calls.
func NewStaticGenerator(library map[domain.Kind][][]string) *StaticGenerator {
	return &StaticGenerator{
		library: library,
		cursor:  make(map[domain.Kind]int),
	}
}

// DefaultLibrary is a minimal built-in set covering every kind.
func DefaultLibrary() map[domain.Kind][][]string {
	return map[domain.Kind][][]string{
		domain.KindHeadline: {
			{"Today's tech brief is on its way. Watch this space for the stories that matter."},
		},
		domain.KindThread: {
			{
				"A quick look at where the industry is heading this quarter. (1/3)",
				"Platform consolidation continues while open tooling keeps closing the gap. (2/3)",
				"The takeaway: build on fundamentals, rent the rest. (3/3)",
			},
		},
		domain.KindRepost: {
			{"Worth a read for anyone following this space."},
		},
		domain.KindWeeklyReview: {
			{"That's a wrap on the week. Recap of the biggest stories coming up."},
		},
		domain.KindFeature: {
			{"Deep dive of the day: one tool, one workflow, one real improvement."},
		},
	}
}

// Generate returns the next canned entry for the requested kind.
func (g *StaticGenerator) Generate(_ context.Context, req Request) (*Result, error) {
	entries := g.library[req.Kind]
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no static content for kind %s", domain.ErrGeneration, req.Kind)
	}

	g.mu.Lock()
	i := g.cursor[req.Kind] % len(entries)
	g.cursor[req.Kind]++
	g.mu.Unlock()

	result := &Result{
		Segments:   entries[i],
		Topic:      req.Topic,
		SourceRefs: []string{},
	}
	if err := validate(result); err != nil {
		return nil, err
	}
	return result, nil
}
