package service

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/mdedup/internal/model"
	appErr "github.com/xxxsen/mdedup/internal/pkg/errors"
	"github.com/xxxsen/mdedup/internal/repo"
)

type fakeDocs struct {
	mu        sync.Mutex
	docs      map[string]model.Document
	listCalls int
}

func newFakeDocs(docs ...model.Document) *fakeDocs {
	f := &fakeDocs{docs: map[string]model.Document{}}
	for _, d := range docs {
		if d.State == 0 {
			d.State = repo.DocumentStateNormal
		}
		f.docs[d.ID] = d
	}
	return f
}

func (f *fakeDocs) live(userID string) []model.Document {
	out := make([]model.Document, 0)
	for _, d := range f.docs {
		if d.UserID == userID && d.State == repo.DocumentStateNormal {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeDocs) ListDocuments(ctx context.Context, userID, afterID string, limit uint) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]model.Document, 0)
	for _, d := range f.live(userID) {
		if d.ID <= afterID {
			continue
		}
		if limit > 0 && uint(len(out)) == limit {
			break
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDocs) ListByIDs(ctx context.Context, userID string, docIDs []string) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, id := range docIDs {
		want[id] = true
	}
	out := make([]model.Document, 0)
	for _, d := range f.live(userID) {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocs) GetByID(ctx context.Context, userID, docID string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[docID]
	if !ok || d.UserID != userID || d.State != repo.DocumentStateNormal {
		return nil, appErr.ErrNotFound
	}
	return &d, nil
}

func (f *fakeDocs) SoftDelete(ctx context.Context, userID string, docIDs []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range docIDs {
		d, ok := f.docs[id]
		if !ok || d.UserID != userID || d.State != repo.DocumentStateNormal {
			continue
		}
		d.State = repo.DocumentStateDeleted
		f.docs[id] = d
		n++
	}
	return n, nil
}

type fakeRuns struct {
	mu         sync.Mutex
	runs       map[string]*model.DedupRun
	reportKeys map[string]string
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: map[string]*model.DedupRun{}, reportKeys: map[string]string{}}
}

func (f *fakeRuns) Create(ctx context.Context, run *model.DedupRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[run.ID]; ok {
		return appErr.ErrConflict
	}
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeRuns) GetByID(ctx context.Context, userID, runID string) (*model.DedupRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok || run.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (f *fakeRuns) List(ctx context.Context, userID string, limit, offset uint) ([]model.DedupRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.DedupRun, 0)
	for _, run := range f.runs {
		if run.UserID == userID {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (f *fakeRuns) MarkApplied(ctx context.Context, userID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok || run.UserID != userID {
		return appErr.ErrNotFound
	}
	if run.State != model.DedupRunStateCompleted {
		return appErr.ErrConflict
	}
	run.State = model.DedupRunStateApplied
	return nil
}

func (f *fakeRuns) SetReportKey(ctx context.Context, runID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportKeys[runID] = key
	return nil
}
