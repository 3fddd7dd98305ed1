// Package generate produces draft content for publishing slots.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/siyinging/social-publisher/internal/domain"
)

// Request describes what a generator should produce.
type Request struct {
	Kind  domain.Kind `json:"kind"`
	Day   string      `json:"day"`
	Topic string      `json:"topic,omitempty"`
}

// Result is generated content ready to be stored as a draft.
type Result struct {
	Segments   []string `json:"segments"`
	Topic      string   `json:"topic"`
	SourceRefs []string `json:"source_refs"`
}

// Generator produces content for one slot. Implementations must return
// ErrGeneration (wrapped) when they cannot produce usable content.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// validate rejects empty or blank output so malformed generator responses
// surface as generation failures rather than downstream compose errors.
func validate(res *Result) error {
	if res == nil || len(res.Segments) == 0 {
		return fmt.Errorf("%w: generator returned no segments", domain.ErrGeneration)
	}
	for i, seg := range res.Segments {
		if strings.TrimSpace(seg) == "" {
			return fmt.Errorf("%w: generator returned blank segment %d", domain.ErrGeneration, i)
		}
	}
	return nil
}

// chain tries a primary generator and falls back to a secondary when the
// primary fails.
type chain struct {
	primary  Generator
	fallback Generator
}

// WithFallback wraps primary so that any generation failure is retried once
// against fallback. The fallback's own failure is returned joined with the
// primary's.
func WithFallback(primary, fallback Generator) Generator {
	return &chain{primary: primary, fallback: fallback}
}

func (c *chain) Generate(ctx context.Context, req Request) (*Result, error) {
	res, primaryErr := c.primary.Generate(ctx, req)
	if primaryErr == nil {
		return res, nil
	}

	res, fallbackErr := c.fallback.Generate(ctx, req)
	if fallbackErr != nil {
		return nil, fmt.Errorf("generate %s: primary: %v, fallback: %w",
			req.Kind, primaryErr, fallbackErr)
	}
	return res, nil
}
