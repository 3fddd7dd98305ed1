package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/siyinging/social-publisher/internal/domain"
	"github.com/siyinging/social-publisher/internal/logger"
)

// ContentReader reads content items for the API.
type ContentReader interface {
	GetByID(ctx context.Context, id string) (*domain.ContentItem, error)
	ListDrafts(ctx context.Context, kind domain.Kind) ([]domain.ContentItem, error)
	StateCounts(ctx context.Context) (map[domain.State]int64, error)
}

// RunLogReader reads the run log for the API.
type RunLogReader interface {
	ListByDay(ctx context.Context, day string) ([]domain.RunRecord, error)
	ListByJob(ctx context.Context, jobName string, limit int) ([]domain.RunRecord, error)
	OutcomeCounts(ctx context.Context, day string) (map[domain.Outcome]int64, error)
}

// Reviewer applies review decisions.
type Reviewer interface {
	Approve(ctx context.Context, id, note string) error
	Reject(ctx context.Context, id, reason string) error
}

// Handlers provides the API's HTTP handlers.
type Handlers struct {
	content  ContentReader
	runlog   RunLogReader
	reviewer Reviewer
	logger   logger.Logger
}

// NewHandlers creates a handlers instance.
func NewHandlers(content ContentReader, runlog RunLogReader, reviewer Reviewer, log logger.Logger) *Handlers {
	return &Handlers{
		content:  content,
		runlog:   runlog,
		reviewer: reviewer,
		logger:   log,
	}
}

// handleDomainError maps domain errors to HTTP responses.
func handleDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "content item not found"})
	case errors.Is(err, domain.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidKind), errors.Is(err, domain.ErrInvalidContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ListDrafts handles GET /api/v1/drafts?kind=thread
func (h *Handlers) ListDrafts(c *gin.Context) {
	var kind domain.Kind
	if raw := c.Query("kind"); raw != "" {
		parsed, err := domain.ParseKind(raw)
		if err != nil {
			handleDomainError(c, err)
			return
		}
		kind = parsed
	}

	drafts, err := h.content.ListDrafts(c.Request.Context(), kind)
	if err != nil {
		h.logger.Error("draft listing failed", logger.Error(err))
		handleDomainError(c, err)
		return
	}
	if drafts == nil {
		drafts = []domain.ContentItem{}
	}
	c.JSON(http.StatusOK, gin.H{"drafts": drafts, "count": len(drafts)})
}

// GetItem handles GET /api/v1/items/:id
func (h *Handlers) GetItem(c *gin.Context) {
	item, err := h.content.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type reviewRequest struct {
	Note   string `json:"note"`
	Reason string `json:"reason"`
}

// ApproveItem handles POST /api/v1/items/:id/approve
func (h *Handlers) ApproveItem(c *gin.Context) {
	var req reviewRequest
	_ = c.ShouldBindJSON(&req) // body is optional for approval

	id := c.Param("id")
	if err := h.reviewer.Approve(c.Request.Context(), id, req.Note); err != nil {
		handleDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "state": domain.StateApproved})
}

// RejectItem handles POST /api/v1/items/:id/reject
func (h *Handlers) RejectItem(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a rejection reason is required"})
		return
	}

	id := c.Param("id")
	if err := h.reviewer.Reject(c.Request.Context(), id, req.Reason); err != nil {
		handleDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "state": domain.StateRejected})
}

// jobHistoryLimit caps how many records a per-job history query returns.
const jobHistoryLimit = 50

// ListRuns handles GET /api/v1/runs?day=2025-06-02 (default: today UTC) and
// GET /api/v1/runs?job=morning-headline for one job's recent history.
func (h *Handlers) ListRuns(c *gin.Context) {
	if job := c.Query("job"); job != "" {
		records, err := h.runlog.ListByJob(c.Request.Context(), job, jobHistoryLimit)
		if err != nil {
			h.logger.Error("run log listing failed", logger.Error(err))
			handleDomainError(c, err)
			return
		}
		if records == nil {
			records = []domain.RunRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"job": job, "runs": records, "count": len(records)})
		return
	}

	day := c.DefaultQuery("day", time.Now().UTC().Format(domain.SlotDayFormat))
	if _, err := time.Parse(domain.SlotDayFormat, day); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYY-MM-DD"})
		return
	}

	records, err := h.runlog.ListByDay(c.Request.Context(), day)
	if err != nil {
		h.logger.Error("run log listing failed", logger.Error(err))
		handleDomainError(c, err)
		return
	}
	if records == nil {
		records = []domain.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "runs": records, "count": len(records)})
}

// GetStats handles GET /api/v1/stats
func (h *Handlers) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	day := time.Now().UTC().Format(domain.SlotDayFormat)

	states, err := h.content.StateCounts(ctx)
	if err != nil {
		h.logger.Error("state counts failed", logger.Error(err))
		handleDomainError(c, err)
		return
	}
	outcomes, err := h.runlog.OutcomeCounts(ctx, day)
	if err != nil {
		h.logger.Error("outcome counts failed", logger.Error(err))
		handleDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items_by_state": states,
		"runs_today":     outcomes,
		"day":            day,
	})
}
