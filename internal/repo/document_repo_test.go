package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mdedup/internal/model"
	appErr "github.com/xxxsen/mdedup/internal/pkg/errors"
	"github.com/xxxsen/mdedup/internal/repo"
	"github.com/xxxsen/mdedup/internal/testutil"
)

func TestDocumentRepoPagingAndIsolation(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	ctx := context.Background()
	now := time.Now().UnixMilli()
	score := 0.7
	for _, id := range []string{"doc-a", "doc-b", "doc-c"} {
		doc := &model.Document{
			ID:      id,
			UserID:  "user-1",
			Title:   "title " + id,
			Content: "content",
			State:   repo.DocumentStateNormal,
			Ctime:   now,
			Mtime:   now,
		}
		if id == "doc-b" {
			doc.QualityScore = &score
		}
		require.NoError(t, docs.Create(ctx, doc))
	}
	require.ErrorIs(t, docs.Create(ctx, &model.Document{ID: "doc-a", UserID: "user-1", Ctime: now, Mtime: now}), appErr.ErrConflict)

	page, err := docs.ListDocuments(ctx, "user-1", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "doc-a", page[0].ID)
	require.Nil(t, page[0].QualityScore)
	require.NotNil(t, page[1].QualityScore)
	require.InDelta(t, 0.7, *page[1].QualityScore, 1e-9)

	page, err = docs.ListDocuments(ctx, "user-1", page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "doc-c", page[0].ID)

	_, err = docs.GetByID(ctx, "user-2", "doc-a")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	n, err := docs.SoftDelete(ctx, "user-1", []string{"doc-a", "doc-missing"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	listed, err := docs.ListByIDs(ctx, "user-1", []string{"doc-a", "doc-b"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "doc-b", listed[0].ID)
}

func TestDedupRunRepoLifecycle(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	runs := repo.NewDedupRunRepo(db)
	ctx := context.Background()
	now := time.Now().UnixMilli()
	run := &model.DedupRun{
		ID:            "run-1",
		UserID:        "user-1",
		NearThreshold: 0.8,
		Total:         3,
		Unique:        2,
		Duplicates:    1,
		State:         model.DedupRunStateCompleted,
		Stats:         "{}",
		Ctime:         now,
		Mtime:         now,
		Groups: []model.DedupGroup{
			{CanonicalID: "doc-a", MemberIDs: []string{"doc-a", "doc-b"}, Tiers: []string{"exact"}},
		},
	}
	require.NoError(t, runs.Create(ctx, run))

	got, err := runs.GetByID(ctx, "user-1", "run-1")
	require.NoError(t, err)
	require.Len(t, got.Groups, 1)
	require.Equal(t, []string{"doc-a", "doc-b"}, got.Groups[0].MemberIDs)

	require.NoError(t, runs.MarkApplied(ctx, "user-1", "run-1"))
	require.ErrorIs(t, runs.MarkApplied(ctx, "user-1", "run-1"), appErr.ErrConflict)
	require.ErrorIs(t, runs.MarkApplied(ctx, "user-1", "run-x"), appErr.ErrNotFound)
}

func TestSignatureRepoRoundTrip(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	sigs := repo.NewSignatureRepo(db)
	ctx := context.Background()
	sig := &model.MinHashSignature{
		ContentHash: "hash-1",
		Fingerprint: "minhash-v1:p4:s1",
		Signature:   []uint64{1, 2, 1 << 63, ^uint64(0)},
		Ctime:       time.Now().Unix(),
	}
	require.NoError(t, sigs.Save(ctx, sig))

	got, ok, err := sigs.Get(ctx, "hash-1", "minhash-v1:p4:s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sig.Signature, got)

	_, ok, err = sigs.Get(ctx, "hash-1", "minhash-v1:p8:s1")
	require.NoError(t, err)
	require.False(t, ok)
}
