package dedup

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// HybridDetector runs the exact, near and semantic tiers in that order and
// groups everything they relate.
type HybridDetector struct {
	cfg        Config
	sk         *sketcher
	exact      *ExactMatcher
	semantic   *SemanticMatcher
	embeddings EmbeddingProvider
}

// SimilarityReport explains how one pair scores on every enabled tier.
type SimilarityReport struct {
	Tier        Tier    `json:"tier"`
	Score       float64 `json:"score"`
	IsDuplicate bool    `json:"is_duplicate"`

	ExactMatch        bool     `json:"exact_match"`
	NearScore         *float64 `json:"near_score,omitempty"`
	SemanticScore     *float64 `json:"semantic_score,omitempty"`
	SemanticAvailable bool     `json:"semantic_available"`
}

func NewHybridDetector(cfg Config, opts ...Option) (*HybridDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(cfg, opts)
	return &HybridDetector{
		cfg:        cfg,
		sk:         newSketcher(cfg, o.cache),
		exact:      NewExactMatcher(),
		semantic:   NewSemanticMatcher(),
		embeddings: o.embeddings,
	}, nil
}

func (h *HybridDetector) Config() Config {
	return h.cfg
}

// Detect groups docs. The result depends only on the set of docs and the
// configuration; a cancelled run comes back Partial with no groups.
func (h *HybridDetector) Detect(ctx context.Context, docs []DocumentRecord) (*BatchResult, error) {
	p := &pipeline{cfg: h.cfg, sk: h.sk, embeddings: h.embeddings}
	return p.run(ctx, docs), nil
}

// Similarity scores a single pair. Tier is the first enabled tier that fires,
// and Score is that tier's score, or the best observed score when none fires.
func (h *HybridDetector) Similarity(ctx context.Context, a, b DocumentRecord) (*SimilarityReport, error) {
	report := &SimilarityReport{Tier: TierNone}
	if h.cfg.EnableExact && h.exact.IsDuplicate(a, b) {
		report.ExactMatch = true
		report.Tier = TierExact
		report.Score = 1.0
	}
	if h.cfg.EnableNear {
		score := h.nearScore(a, b)
		report.NearScore = &score
		h.observe(report, TierNear, score, h.cfg.NearThreshold)
	}
	if h.cfg.EnableSemantic {
		a, b = h.withEmbeddings(ctx, a, b)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score, err := h.semantic.Similarity(a, b)
		if err == nil {
			report.SemanticAvailable = true
			report.SemanticScore = &score
			h.observe(report, TierSemantic, score, h.cfg.SemanticThreshold)
		}
	}
	report.IsDuplicate = report.Tier != TierNone
	return report, nil
}

func (h *HybridDetector) observe(report *SimilarityReport, tier Tier, score, threshold float64) {
	if report.Tier != TierNone {
		return
	}
	if score >= threshold {
		report.Tier = tier
		report.Score = score
		return
	}
	if score > report.Score {
		report.Score = score
	}
}

func (h *HybridDetector) nearScore(a, b DocumentRecord) float64 {
	_, sa, err := h.sk.sketchText(a.Text)
	if err != nil {
		return 0
	}
	_, sb, err := h.sk.sketchText(b.Text)
	if err != nil {
		return 0
	}
	return EstimateJaccard(sa, sb)
}

func (h *HybridDetector) withEmbeddings(ctx context.Context, a, b DocumentRecord) (DocumentRecord, DocumentRecord) {
	if h.embeddings == nil || (a.Embedding.Present() && b.Embedding.Present()) {
		return a, b
	}
	want := make(map[string]string, 2)
	for _, r := range []DocumentRecord{a, b} {
		if !r.Embedding.Present() && r.ID != "" {
			want[r.ID] = recordHash(r)
		}
	}
	if len(want) == 0 {
		return a, b
	}
	vectors, stale, err := fetchEmbeddings(ctx, h.embeddings, want)
	if err != nil {
		logutil.GetLogger(ctx).Warn("fetch embeddings for similarity failed", zap.Int("count", len(want)), zap.Error(err))
		return a, b
	}
	if stale > 0 {
		logutil.GetLogger(ctx).Debug("stale embeddings ignored", zap.Int("count", stale))
	}
	if vec, ok := vectors[a.ID]; ok && !a.Embedding.Present() {
		a.Embedding = SomeEmbedding(vec)
	}
	if vec, ok := vectors[b.ID]; ok && !b.Embedding.Present() {
		b.Embedding = SomeEmbedding(vec)
	}
	return a, b
}

// RemoveDuplicates builds a removal plan from groups. See the package function.
func (h *HybridDetector) RemoveDuplicates(groups []Group) RemovalPlan {
	return RemoveDuplicates(groups)
}
