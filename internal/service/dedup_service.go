package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdedup/internal/dedup"
	"github.com/xxxsen/mdedup/internal/filestore"
	"github.com/xxxsen/mdedup/internal/model"
	appErr "github.com/xxxsen/mdedup/internal/pkg/errors"
)

type DocumentStore interface {
	DocumentLister
	SoftDelete(ctx context.Context, userID string, docIDs []string) (int64, error)
}

type RunStore interface {
	Create(ctx context.Context, run *model.DedupRun) error
	GetByID(ctx context.Context, userID, runID string) (*model.DedupRun, error)
	List(ctx context.Context, userID string, limit, offset uint) ([]model.DedupRun, error)
	MarkApplied(ctx context.Context, userID, runID string) error
	SetReportKey(ctx context.Context, runID, key string) error
}

type DedupDeps struct {
	Docs       DocumentStore
	Runs       RunStore
	Embeddings dedup.EmbeddingProvider
	Signatures dedup.SignatureCache
	// Reports is optional; runs are not archived when it is nil.
	Reports filestore.Store
}

type DedupService struct {
	cfg    dedup.Config
	deps   DedupDeps
	source *DocumentSource
}

// BatchRun is a persisted detection run together with its removal plan.
type BatchRun struct {
	RunID  string             `json:"run_id"`
	Result *dedup.BatchResult `json:"result"`
	Plan   dedup.RemovalPlan  `json:"plan"`
}

type ApplyResult struct {
	RunID   string   `json:"run_id"`
	Removed []string `json:"removed"`
	Deleted int64    `json:"deleted"`
}

type runReport struct {
	RunID     string             `json:"run_id"`
	UserID    string             `json:"user_id"`
	CreatedAt time.Time          `json:"created_at"`
	Config    dedup.Config       `json:"config"`
	Result    *dedup.BatchResult `json:"result"`
	Plan      dedup.RemovalPlan  `json:"plan"`
}

func NewDedupService(cfg dedup.Config, deps DedupDeps) (*DedupService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Docs == nil || deps.Runs == nil {
		return nil, fmt.Errorf("dedup service requires document and run stores")
	}
	return &DedupService{cfg: cfg, deps: deps, source: NewDocumentSource(deps.Docs, 0)}, nil
}

func (s *DedupService) Config() dedup.Config {
	return s.cfg
}

func (s *DedupService) options() []dedup.Option {
	opts := []dedup.Option{dedup.WithSignatureCache(s.deps.Signatures)}
	if s.deps.Embeddings != nil {
		opts = append(opts, dedup.WithEmbeddingProvider(s.deps.Embeddings))
	}
	return opts
}

// withThreshold returns the config with its near threshold replaced. Zero
// keeps the configured threshold.
func (s *DedupService) withThreshold(threshold float64) (dedup.Config, error) {
	cfg := s.cfg
	if threshold != 0 {
		cfg.NearThreshold = threshold
	}
	if err := cfg.Validate(); err != nil {
		return dedup.Config{}, err
	}
	return cfg, nil
}

// CheckDuplicate finds the user's documents that near-duplicate text.
func (s *DedupService) CheckDuplicate(ctx context.Context, userID, text string, threshold float64) ([]dedup.Match, error) {
	cfg, err := s.withThreshold(threshold)
	if err != nil {
		return nil, err
	}
	detector, err := dedup.NewNearDetector(cfg, s.options()...)
	if err != nil {
		return nil, err
	}
	records, err := s.source.LoadAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := detector.AddDocument(ctx, rec.ID, rec.Text); err != nil {
			return nil, err
		}
	}
	return detector.CheckDuplicate(ctx, text, cfg.NearThreshold)
}

// BatchDeduplicate runs every enabled tier over docIDs, or over all of the
// user's documents when docIDs is empty, and persists the run. A zero
// threshold uses the configured one.
func (s *DedupService) BatchDeduplicate(ctx context.Context, userID string, docIDs []string, threshold float64) (*BatchRun, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", userID))
	cfg, err := s.withThreshold(threshold)
	if err != nil {
		return nil, err
	}
	detector, err := dedup.NewHybridDetector(cfg, s.options()...)
	if err != nil {
		return nil, err
	}
	var records []dedup.DocumentRecord
	if len(docIDs) == 0 {
		records, err = s.source.LoadAll(ctx, userID)
	} else {
		records, err = s.source.Load(ctx, userID, docIDs)
	}
	if err != nil {
		return nil, err
	}
	result, err := detector.Detect(ctx, records)
	if err != nil {
		return nil, err
	}
	run := &BatchRun{
		RunID:  uuid.NewString(),
		Result: result,
		Plan:   dedup.RemoveDuplicates(result.Groups),
	}
	// The request context may already be cancelled; the run is still recorded.
	saveCtx := context.WithoutCancel(ctx)
	if err := s.deps.Runs.Create(saveCtx, toRunModel(run.RunID, userID, cfg.NearThreshold, result)); err != nil {
		logger.Error("save dedup run failed", zap.Error(err))
		return nil, err
	}
	s.archive(saveCtx, userID, cfg, run)
	logger.Info("dedup run saved",
		zap.String("run_id", run.RunID),
		zap.Int("total", result.Total),
		zap.Int("duplicates", result.Duplicates),
		zap.Bool("partial", result.Partial),
		zap.Bool("degraded", result.Degraded))
	return run, nil
}

func (s *DedupService) archive(ctx context.Context, userID string, cfg dedup.Config, run *BatchRun) {
	if s.deps.Reports == nil {
		return
	}
	logger := logutil.GetLogger(ctx).With(zap.String("run_id", run.RunID))
	data, err := json.Marshal(runReport{
		RunID:     run.RunID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Config:    cfg,
		Result:    run.Result,
		Plan:      run.Plan,
	})
	if err != nil {
		logger.Warn("encode run report failed", zap.Error(err))
		return
	}
	key := run.RunID + ".json"
	if err := filestore.SaveBytes(ctx, s.deps.Reports, key, data); err != nil {
		logger.Warn("archive run report failed", zap.Error(err))
		return
	}
	if err := s.deps.Runs.SetReportKey(ctx, run.RunID, key); err != nil {
		logger.Warn("record report key failed", zap.Error(err))
	}
}

// Similarity scores two of the user's documents on every enabled tier.
func (s *DedupService) Similarity(ctx context.Context, userID, idA, idB string) (*dedup.SimilarityReport, error) {
	detector, err := dedup.NewHybridDetector(s.cfg, s.options()...)
	if err != nil {
		return nil, err
	}
	a, err := s.source.Get(ctx, userID, idA)
	if err != nil {
		return nil, err
	}
	b, err := s.source.Get(ctx, userID, idB)
	if err != nil {
		return nil, err
	}
	return detector.Similarity(ctx, a, b)
}

func (s *DedupService) ListRuns(ctx context.Context, userID string, limit, offset uint) ([]model.DedupRun, error) {
	return s.deps.Runs.List(ctx, userID, limit, offset)
}

func (s *DedupService) GetRun(ctx context.Context, userID, runID string) (*model.DedupRun, error) {
	return s.deps.Runs.GetByID(ctx, userID, runID)
}

// ApplyRemoval soft-deletes every non-canonical member of a completed run.
// Partial runs have no groups to trust and are refused, as is a second apply.
func (s *DedupService) ApplyRemoval(ctx context.Context, userID, runID string) (*ApplyResult, error) {
	run, err := s.deps.Runs.GetByID(ctx, userID, runID)
	if err != nil {
		return nil, err
	}
	if run.Partial {
		return nil, appErr.ErrRunPartial
	}
	if run.State == model.DedupRunStateApplied {
		return nil, appErr.ErrRunApplied
	}
	removed := removedIDs(run.Groups)
	deleted, err := s.deps.Docs.SoftDelete(ctx, userID, removed)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Runs.MarkApplied(ctx, userID, runID); err != nil {
		if errors.Is(err, appErr.ErrConflict) {
			return nil, appErr.ErrRunApplied
		}
		return nil, err
	}
	logutil.GetLogger(ctx).Info("dedup run applied",
		zap.String("user_id", userID), zap.String("run_id", runID),
		zap.Int("removed", len(removed)), zap.Int64("deleted", deleted))
	return &ApplyResult{RunID: runID, Removed: removed, Deleted: deleted}, nil
}

func removedIDs(groups []model.DedupGroup) []string {
	out := make([]string, 0)
	for _, g := range groups {
		for _, id := range g.MemberIDs {
			if id != g.CanonicalID {
				out = append(out, id)
			}
		}
	}
	return out
}

func toRunModel(runID, userID string, threshold float64, res *dedup.BatchResult) *model.DedupRun {
	now := time.Now().UnixMilli()
	stats, _ := json.Marshal(res.Stats)
	groups := make([]model.DedupGroup, 0, len(res.Groups))
	for i, g := range res.Groups {
		tiers := make([]string, 0, len(g.Tiers))
		for _, t := range g.Tiers {
			tiers = append(tiers, string(t))
		}
		groups = append(groups, model.DedupGroup{
			RunID:       runID,
			Index:       i,
			CanonicalID: g.CanonicalID,
			MemberIDs:   g.MemberIDs,
			Tiers:       tiers,
		})
	}
	return &model.DedupRun{
		ID:            runID,
		UserID:        userID,
		NearThreshold: threshold,
		Total:         res.Total,
		Unique:        res.Unique,
		Duplicates:    res.Duplicates,
		Partial:       res.Partial,
		Degraded:      res.Degraded,
		State:         model.DedupRunStateCompleted,
		Stats:         string(stats),
		Ctime:         now,
		Mtime:         now,
		Groups:        groups,
	}
}
