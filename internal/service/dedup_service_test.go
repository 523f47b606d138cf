package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mdedup/internal/config"
	"github.com/xxxsen/mdedup/internal/dedup"
	"github.com/xxxsen/mdedup/internal/filestore"
	"github.com/xxxsen/mdedup/internal/model"
	appErr "github.com/xxxsen/mdedup/internal/pkg/errors"
)

type mapEmbeddings map[string][]float32

func (m mapEmbeddings) Embeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	out := map[string][]float32{}
	for _, id := range ids {
		if v, ok := m[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func sampleDocs() []model.Document {
	return []model.Document{
		{ID: "doc-a", UserID: "user-1", Title: "Weekly notes", Content: "Hello   world, this is a **note** about caching.", Ctime: 1000},
		{ID: "doc-b", UserID: "user-1", Title: "weekly notes", Content: "hello world this is a note about caching", Ctime: 2000},
		{ID: "doc-c", UserID: "user-1", Title: "Groceries", Content: "milk eggs bread butter apples and a bag of coffee beans", Ctime: 3000},
		{ID: "doc-e", UserID: "user-1", Title: "Shopping", Content: "dairy, bakery items, fruit, coffee", Ctime: 4000},
		{ID: "doc-x", UserID: "user-2", Title: "Weekly notes", Content: "hello world this is a note about caching", Ctime: 500},
	}
}

func newTestService(t *testing.T, docs *fakeDocs, runs *fakeRuns, reports filestore.Store) *DedupService {
	t.Helper()
	svc, err := NewDedupService(dedup.DefaultConfig(), DedupDeps{
		Docs: docs,
		Runs: runs,
		Embeddings: mapEmbeddings{
			"doc-c": {1, 0, 0},
			"doc-e": {0.99, 0.05, 0},
		},
		Signatures: dedup.NewLRUSignatureCache(64),
		Reports:    reports,
	})
	require.NoError(t, err)
	return svc
}

func TestDedupServiceBatchPersistsRun(t *testing.T) {
	reports, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	runs := newFakeRuns()
	svc := newTestService(t, newFakeDocs(sampleDocs()...), runs, reports)
	ctx := context.Background()

	run, err := svc.BatchDeduplicate(ctx, "user-1", nil, 0)
	require.NoError(t, err)
	res := run.Result
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Unique)
	assert.Equal(t, 2, res.Duplicates)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, dedup.Group{CanonicalID: "doc-a", MemberIDs: []string{"doc-a", "doc-b"}, Tiers: []dedup.Tier{dedup.TierExact}}, res.Groups[0])
	assert.Equal(t, dedup.Group{CanonicalID: "doc-c", MemberIDs: []string{"doc-c", "doc-e"}, Tiers: []dedup.Tier{dedup.TierSemantic}}, res.Groups[1])

	stored, err := svc.GetRun(ctx, "user-1", run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 0.95, stored.NearThreshold)
	assert.Equal(t, model.DedupRunStateCompleted, stored.State)
	require.Len(t, stored.Groups, 2)
	assert.Equal(t, []string{"semantic"}, stored.Groups[1].Tiers)

	key := runs.reportKeys[run.RunID]
	require.Equal(t, run.RunID+".json", key)
	rc, err := reports.Open(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"canonical_id":"doc-a"`)

	_, err = svc.GetRun(ctx, "user-2", run.RunID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDedupServiceBatchSubset(t *testing.T) {
	svc := newTestService(t, newFakeDocs(sampleDocs()...), newFakeRuns(), nil)
	run, err := svc.BatchDeduplicate(context.Background(), "user-1", []string{"doc-a", "doc-c", "doc-x", "missing"}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Result.Total)
	assert.Equal(t, 0, run.Result.Duplicates)
	assert.Empty(t, run.Result.Groups)
	assert.Empty(t, run.Plan.Removed)
}

func TestDedupServiceRejectsBadThreshold(t *testing.T) {
	svc := newTestService(t, newFakeDocs(sampleDocs()...), newFakeRuns(), nil)
	_, err := svc.BatchDeduplicate(context.Background(), "user-1", nil, 1.5)
	require.ErrorIs(t, err, dedup.ErrInvalidConfig)
	_, err = svc.CheckDuplicate(context.Background(), "user-1", "text", -0.1)
	require.ErrorIs(t, err, dedup.ErrInvalidConfig)
}

func TestDedupServiceApplyRemoval(t *testing.T) {
	docs := newFakeDocs(sampleDocs()...)
	runs := newFakeRuns()
	svc := newTestService(t, docs, runs, nil)
	ctx := context.Background()

	run, err := svc.BatchDeduplicate(ctx, "user-1", nil, 0)
	require.NoError(t, err)

	applied, err := svc.ApplyRemoval(ctx, "user-1", run.RunID)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-b", "doc-e"}, applied.Removed)
	assert.Equal(t, int64(2), applied.Deleted)

	_, err = docs.GetByID(ctx, "user-1", "doc-b")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = docs.GetByID(ctx, "user-1", "doc-a")
	require.NoError(t, err)

	_, err = svc.ApplyRemoval(ctx, "user-1", run.RunID)
	require.ErrorIs(t, err, appErr.ErrRunApplied)
}

func TestDedupServiceRefusesPartialRun(t *testing.T) {
	runs := newFakeRuns()
	require.NoError(t, runs.Create(context.Background(), &model.DedupRun{
		ID: "run-partial", UserID: "user-1", Partial: true, State: model.DedupRunStateCompleted,
	}))
	svc := newTestService(t, newFakeDocs(sampleDocs()...), runs, nil)
	_, err := svc.ApplyRemoval(context.Background(), "user-1", "run-partial")
	require.ErrorIs(t, err, appErr.ErrRunPartial)
}

func TestDedupServiceCheckDuplicate(t *testing.T) {
	svc := newTestService(t, newFakeDocs(sampleDocs()...), newFakeRuns(), nil)
	matches, err := svc.CheckDuplicate(context.Background(), "user-1", "Weekly notes. Hello world, this is a note about caching!", 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "doc-a", matches[0].DocumentID)
	assert.Equal(t, "doc-b", matches[1].DocumentID)
	assert.Equal(t, 1.0, matches[0].Score)

	matches, err = svc.CheckDuplicate(context.Background(), "user-1", "an entirely different sentence about mountains and rivers", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDedupServiceSimilarity(t *testing.T) {
	svc := newTestService(t, newFakeDocs(sampleDocs()...), newFakeRuns(), nil)
	ctx := context.Background()

	report, err := svc.Similarity(ctx, "user-1", "doc-a", "doc-b")
	require.NoError(t, err)
	assert.Equal(t, dedup.TierExact, report.Tier)
	assert.Equal(t, 1.0, report.Score)

	report, err = svc.Similarity(ctx, "user-1", "doc-c", "doc-e")
	require.NoError(t, err)
	assert.Equal(t, dedup.TierSemantic, report.Tier)
	assert.True(t, report.SemanticAvailable)

	_, err = svc.Similarity(ctx, "user-1", "doc-a", "doc-x")
	require.True(t, errors.Is(err, appErr.ErrNotFound))
}

func TestDocumentSourcePaging(t *testing.T) {
	docs := newFakeDocs(sampleDocs()...)
	source := NewDocumentSource(docs, 2)
	records, err := source.LoadAll(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "doc-a", records[0].ID)
	assert.Equal(t, "doc-e", records[3].ID)
	assert.Equal(t, 3, docs.listCalls)
}

func TestToRecord(t *testing.T) {
	score := 0.4
	rec := ToRecord(model.Document{ID: "d", Title: "Title", Content: "# Head\n\nsome *text*", Ctime: 1500, QualityScore: &score})
	assert.Equal(t, "Title\nHead\nsome text", rec.Text)
	assert.Equal(t, dedup.ContentHash("title head some text"), rec.ContentHash)
	assert.Equal(t, int64(1500), rec.CreatedAt.UnixMilli())
	assert.Equal(t, &score, rec.QualityScore)

	empty := ToRecord(model.Document{ID: "e"})
	assert.Equal(t, "", empty.ContentHash)
	assert.True(t, empty.CreatedAt.IsZero())
}
