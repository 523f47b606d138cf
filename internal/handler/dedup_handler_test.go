package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mdedup/internal/dedup"
	"github.com/xxxsen/mdedup/internal/handler"
	"github.com/xxxsen/mdedup/internal/model"
	"github.com/xxxsen/mdedup/internal/pkg/errcode"
	appErr "github.com/xxxsen/mdedup/internal/pkg/errors"
	"github.com/xxxsen/mdedup/internal/pkg/jwt"
	"github.com/xxxsen/mdedup/internal/service"
)

var testSecret = []byte("test-secret")

type fakeDedup struct {
	lastUser      string
	lastThreshold float64
	lastIDs       []string
	applyErr      error
}

func (f *fakeDedup) CheckDuplicate(ctx context.Context, userID, text string, threshold float64) ([]dedup.Match, error) {
	f.lastUser = userID
	f.lastThreshold = threshold
	if threshold > 1 {
		cfg := dedup.DefaultConfig()
		cfg.NearThreshold = threshold
		return nil, cfg.Validate()
	}
	return []dedup.Match{{DocumentID: "doc-a", Score: 1}}, nil
}

func (f *fakeDedup) BatchDeduplicate(ctx context.Context, userID string, docIDs []string, threshold float64) (*service.BatchRun, error) {
	f.lastUser = userID
	f.lastIDs = docIDs
	f.lastThreshold = threshold
	groups := []dedup.Group{{CanonicalID: "doc-a", MemberIDs: []string{"doc-a", "doc-b"}, Tiers: []dedup.Tier{dedup.TierExact}}}
	return &service.BatchRun{
		RunID:  "run-1",
		Result: &dedup.BatchResult{Total: 3, Unique: 2, Duplicates: 1, Groups: groups},
		Plan:   dedup.RemoveDuplicates(groups),
	}, nil
}

func (f *fakeDedup) Similarity(ctx context.Context, userID, idA, idB string) (*dedup.SimilarityReport, error) {
	if idB == "missing" {
		return nil, appErr.ErrNotFound
	}
	return &dedup.SimilarityReport{Tier: dedup.TierExact, Score: 1, IsDuplicate: true, ExactMatch: true}, nil
}

func (f *fakeDedup) ListRuns(ctx context.Context, userID string, limit, offset uint) ([]model.DedupRun, error) {
	return []model.DedupRun{{ID: "run-1", UserID: userID}}, nil
}

func (f *fakeDedup) GetRun(ctx context.Context, userID, runID string) (*model.DedupRun, error) {
	if runID != "run-1" {
		return nil, appErr.ErrNotFound
	}
	return &model.DedupRun{ID: runID, UserID: userID}, nil
}

func (f *fakeDedup) ApplyRemoval(ctx context.Context, userID, runID string) (*service.ApplyResult, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	return &service.ApplyResult{RunID: runID, Removed: []string{"doc-b"}, Deleted: 1}, nil
}

type fakeJobs struct {
	ran []string
}

func (f *fakeJobs) RunNow(ctx context.Context, name string) error {
	f.ran = append(f.ran, name)
	return nil
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T) (*gin.Engine, *fakeDedup, *fakeJobs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fake := &fakeDedup{}
	jobs := &fakeJobs{}
	r := gin.New()
	handler.RegisterRoutes(r.Group("/api/v1"), handler.RouterDeps{
		Dedup:         handler.NewDedupHandler(fake),
		Jobs:          handler.NewJobHandler(jobs),
		JWTSecret:     testSecret,
		BatchInterval: time.Minute,
	})
	return r, fake, jobs
}

func token(t *testing.T, userID, scope string) string {
	t.Helper()
	tok, err := jwt.GenerateToken(userID, scope, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, r http.Handler, method, path, tok string, body interface{}) envelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var out envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestDedupRoutesRequireAuth(t *testing.T) {
	r, _, _ := setupRouter(t)
	out := do(t, r, http.MethodPost, "/api/v1/dedup/check", "", map[string]string{"text": "x"})
	require.Equal(t, errcode.ErrUnauthorized, out.Code)
}

func TestDedupCheck(t *testing.T) {
	r, fake, _ := setupRouter(t)
	tok := token(t, "user-1", "")

	out := do(t, r, http.MethodPost, "/api/v1/dedup/check", tok, map[string]interface{}{"text": "hello"})
	var data struct {
		Matches []dedup.Match `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &data))
	require.Equal(t, []dedup.Match{{DocumentID: "doc-a", Score: 1}}, data.Matches)
	require.Equal(t, "user-1", fake.lastUser)
	require.Equal(t, 0.0, fake.lastThreshold)

	out = do(t, r, http.MethodPost, "/api/v1/dedup/check", tok, map[string]interface{}{"text": "hello", "threshold": 1.5})
	require.Equal(t, errcode.ErrInvalidConfig, out.Code)
}

func TestDedupBatchAndRateLimit(t *testing.T) {
	r, fake, _ := setupRouter(t)
	tok := token(t, "user-1", "")

	out := do(t, r, http.MethodPost, "/api/v1/dedup/batch", tok, map[string]interface{}{
		"document_ids": []string{" doc-a ", "doc-b", ""},
		"threshold":    0.9,
	})
	var data struct {
		RunID      string        `json:"run_id"`
		Total      int           `json:"total"`
		Duplicates int           `json:"duplicates"`
		Groups     []dedup.Group `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &data))
	require.Equal(t, "run-1", data.RunID)
	require.Equal(t, 3, data.Total)
	require.Equal(t, 1, data.Duplicates)
	require.Len(t, data.Groups, 1)
	require.Equal(t, []string{"doc-a", "doc-b"}, fake.lastIDs)
	require.Equal(t, 0.9, fake.lastThreshold)

	out = do(t, r, http.MethodPost, "/api/v1/dedup/batch", tok, nil)
	require.Equal(t, errcode.ErrTooMany, out.Code)

	other := token(t, "user-2", "")
	out = do(t, r, http.MethodPost, "/api/v1/dedup/batch", other, nil)
	require.NotEqual(t, errcode.ErrTooMany, out.Code)
	require.Empty(t, fake.lastIDs)
}

func TestDedupSimilarity(t *testing.T) {
	r, _, _ := setupRouter(t)
	tok := token(t, "user-1", "")

	out := do(t, r, http.MethodGet, "/api/v1/dedup/similarity?a=doc-a&b=doc-b", tok, nil)
	var report dedup.SimilarityReport
	require.NoError(t, json.Unmarshal(out.Data, &report))
	require.Equal(t, dedup.TierExact, report.Tier)
	require.Equal(t, 1.0, report.Score)

	out = do(t, r, http.MethodGet, "/api/v1/dedup/similarity?a=doc-a&b=missing", tok, nil)
	require.Equal(t, errcode.ErrNotFound, out.Code)

	out = do(t, r, http.MethodGet, "/api/v1/dedup/similarity?a=doc-a", tok, nil)
	require.Equal(t, errcode.ErrInvalid, out.Code)
}

func TestDedupRuns(t *testing.T) {
	r, fake, _ := setupRouter(t)
	tok := token(t, "user-1", "")

	out := do(t, r, http.MethodGet, "/api/v1/dedup/runs?limit=1", tok, nil)
	var page struct {
		Items []model.DedupRun `json:"items"`
		Next  string           `json:"next"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, "1", page.Next)

	out = do(t, r, http.MethodGet, "/api/v1/dedup/runs/nope", tok, nil)
	require.Equal(t, errcode.ErrNotFound, out.Code)

	out = do(t, r, http.MethodPost, "/api/v1/dedup/runs/run-1/apply", tok, nil)
	var applied service.ApplyResult
	require.NoError(t, json.Unmarshal(out.Data, &applied))
	require.Equal(t, []string{"doc-b"}, applied.Removed)

	fake.applyErr = appErr.ErrRunApplied
	out = do(t, r, http.MethodPost, "/api/v1/dedup/runs/run-1/apply", tok, nil)
	require.Equal(t, errcode.ErrRunApplied, out.Code)

	fake.applyErr = appErr.ErrRunPartial
	out = do(t, r, http.MethodPost, "/api/v1/dedup/runs/run-1/apply", tok, nil)
	require.Equal(t, errcode.ErrRunPartial, out.Code)
}

func TestJobRunRequiresOperator(t *testing.T) {
	r, _, jobs := setupRouter(t)

	out := do(t, r, http.MethodPost, "/api/v1/jobs/dedup_batch/run", token(t, "user-1", jwt.ScopeUser), nil)
	require.Equal(t, errcode.ErrForbidden, out.Code)
	require.Empty(t, jobs.ran)

	do(t, r, http.MethodPost, "/api/v1/jobs/dedup_batch/run", token(t, "ops", jwt.ScopeOperator), nil)
	require.Equal(t, []string{"dedup_batch"}, jobs.ran)
}
