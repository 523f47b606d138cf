package dedup

import (
	"math"
)

// Verdict is the three-valued outcome of a semantic comparison.
type Verdict int

const (
	VerdictNotDuplicate Verdict = iota
	VerdictDuplicate
	VerdictUnavailable
)

func (v Verdict) String() string {
	switch v {
	case VerdictDuplicate:
		return "duplicate"
	case VerdictUnavailable:
		return "unavailable"
	default:
		return "not_duplicate"
	}
}

// SemanticMatcher compares documents by cosine similarity of their embeddings.
type SemanticMatcher struct{}

func NewSemanticMatcher() *SemanticMatcher {
	return &SemanticMatcher{}
}

// Similarity returns the cosine similarity, or ErrUnavailable when either
// embedding is missing or the dimensions differ.
func (m *SemanticMatcher) Similarity(a, b DocumentRecord) (float64, error) {
	va, okA := a.Embedding.Get()
	vb, okB := b.Embedding.Get()
	if !okA || !okB || len(va) != len(vb) {
		return 0, ErrUnavailable
	}
	return CosineSimilarity(va, vb), nil
}

func (m *SemanticMatcher) IsDuplicate(a, b DocumentRecord, threshold float64) Verdict {
	score, err := m.Similarity(a, b)
	if err != nil {
		return VerdictUnavailable
	}
	if score >= threshold {
		return VerdictDuplicate
	}
	return VerdictNotDuplicate
}

// CosineSimilarity returns 0 for mismatched or zero-norm vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	score := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}
