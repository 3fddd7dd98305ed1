package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siyinging/social-publisher/internal/api"
	"github.com/siyinging/social-publisher/internal/domain"
	"github.com/siyinging/social-publisher/internal/logger"
)

type fakeBackend struct {
	items map[string]*domain.ContentItem
	runs  []domain.RunRecord
}

func (f *fakeBackend) GetByID(_ context.Context, id string) (*domain.ContentItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (f *fakeBackend) ListDrafts(_ context.Context, kind domain.Kind) ([]domain.ContentItem, error) {
	var drafts []domain.ContentItem
	for _, item := range f.items {
		if item.State == domain.StateDraft && (kind == "" || item.Kind == kind) {
			drafts = append(drafts, *item)
		}
	}
	return drafts, nil
}

func (f *fakeBackend) StateCounts(context.Context) (map[domain.State]int64, error) {
	counts := make(map[domain.State]int64)
	for _, item := range f.items {
		counts[item.State]++
	}
	return counts, nil
}

func (f *fakeBackend) ListByDay(_ context.Context, day string) ([]domain.RunRecord, error) {
	var out []domain.RunRecord
	for _, r := range f.runs {
		if r.Day == day {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) ListByJob(_ context.Context, jobName string, limit int) ([]domain.RunRecord, error) {
	var out []domain.RunRecord
	for _, r := range f.runs {
		if r.JobName == jobName && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) OutcomeCounts(_ context.Context, day string) (map[domain.Outcome]int64, error) {
	counts := make(map[domain.Outcome]int64)
	for _, r := range f.runs {
		if r.Day == day {
			counts[r.Outcome]++
		}
	}
	return counts, nil
}

func (f *fakeBackend) Approve(_ context.Context, id, _ string) error {
	return f.move(id, domain.StateApproved)
}

func (f *fakeBackend) Reject(_ context.Context, id, _ string) error {
	return f.move(id, domain.StateRejected)
}

func (f *fakeBackend) move(id string, to domain.State) error {
	item, ok := f.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if item.State != domain.StateDraft {
		return fmt.Errorf("%w: item is %s", domain.ErrInvalidState, item.State)
	}
	item.State = to
	return nil
}

func testRouter(t *testing.T, backend *fakeBackend) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handlers := api.NewHandlers(backend, backend, backend, logger.NewNopLogger())
	engine := gin.New()
	v1 := engine.Group("/api/v1")
	v1.GET("/drafts", handlers.ListDrafts)
	v1.GET("/items/:id", handlers.GetItem)
	v1.POST("/items/:id/approve", handlers.ApproveItem)
	v1.POST("/items/:id/reject", handlers.RejectItem)
	v1.GET("/runs", handlers.ListRuns)
	v1.GET("/stats", handlers.GetStats)
	return engine
}

func seededBackend(t *testing.T) *fakeBackend {
	t.Helper()
	draft, err := domain.NewContentItem(domain.KindThread, time.Now().UTC(), []string{"one", "two"})
	require.NoError(t, err)
	draft.ID = "draft-1"

	published, err := domain.NewContentItem(domain.KindHeadline, time.Now().UTC(), []string{"headline"})
	require.NoError(t, err)
	published.ID = "pub-1"
	published.State = domain.StatePublished

	rec := domain.NewRunRecord("morning-headline", domain.OutcomeSuccess).WithItem("pub-1")

	return &fakeBackend{
		items: map[string]*domain.ContentItem{draft.ID: draft, published.ID: published},
		runs:  []domain.RunRecord{*rec},
	}
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListDrafts(t *testing.T) {
	router := testRouter(t, seededBackend(t))

	w := do(router, http.MethodGet, "/api/v1/drafts", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Drafts []domain.ContentItem `json:"drafts"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "draft-1", resp.Drafts[0].ID)

	w = do(router, http.MethodGet, "/api/v1/drafts?kind=nonsense", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetItem(t *testing.T) {
	router := testRouter(t, seededBackend(t))

	w := do(router, http.MethodGet, "/api/v1/items/draft-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/v1/items/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApproveItem(t *testing.T) {
	backend := seededBackend(t)
	router := testRouter(t, backend)

	w := do(router, http.MethodPost, "/api/v1/items/draft-1/approve", `{"note":"lgtm"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StateApproved, backend.items["draft-1"].State)

	// Published items cannot be approved again.
	w = do(router, http.MethodPost, "/api/v1/items/pub-1/approve", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(router, http.MethodPost, "/api/v1/items/missing/approve", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRejectItem(t *testing.T) {
	backend := seededBackend(t)
	router := testRouter(t, backend)

	w := do(router, http.MethodPost, "/api/v1/items/draft-1/reject", "{}")
	assert.Equal(t, http.StatusBadRequest, w.Code, "rejection without a reason is refused")
	assert.Equal(t, domain.StateDraft, backend.items["draft-1"].State)

	w = do(router, http.MethodPost, "/api/v1/items/draft-1/reject", `{"reason":"off topic"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StateRejected, backend.items["draft-1"].State)
}

func TestListRuns(t *testing.T) {
	router := testRouter(t, seededBackend(t))

	w := do(router, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Runs  []domain.RunRecord `json:"runs"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "morning-headline", resp.Runs[0].JobName)

	w = do(router, http.MethodGet, "/api/v1/runs?day=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRunsByJob(t *testing.T) {
	router := testRouter(t, seededBackend(t))

	w := do(router, http.MethodGet, "/api/v1/runs?job=morning-headline", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Job   string             `json:"job"`
		Runs  []domain.RunRecord `json:"runs"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "morning-headline", resp.Job)
	assert.Equal(t, 1, resp.Count)

	w = do(router, http.MethodGet, "/api/v1/runs?job=never-registered", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
}

func TestGetStats(t *testing.T) {
	router := testRouter(t, seededBackend(t))

	w := do(router, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ItemsByState map[string]int64 `json:"items_by_state"`
		RunsToday    map[string]int64 `json:"runs_today"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ItemsByState["draft"])
	assert.Equal(t, int64(1), resp.ItemsByState["published"])
	assert.Equal(t, int64(1), resp.RunsToday["success"])
}
