package dedup

import (
	"time"
)

// Tier names the detector that produced a relation.
type Tier string

const (
	TierExact    Tier = "exact"
	TierNear     Tier = "near"
	TierSemantic Tier = "semantic"
	TierNone     Tier = "none"
)

func (t Tier) rank() int {
	switch t {
	case TierExact:
		return 0
	case TierNear:
		return 1
	case TierSemantic:
		return 2
	default:
		return 3
	}
}

// Embedding is an optional vector. The zero value is absent.
type Embedding struct {
	values  []float32
	present bool
}

func SomeEmbedding(values []float32) Embedding {
	if len(values) == 0 {
		return Embedding{}
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return Embedding{values: clone, present: true}
}

func NoEmbedding() Embedding {
	return Embedding{}
}

// Get returns the vector and whether it is present. The slice must not be modified.
func (e Embedding) Get() ([]float32, bool) {
	return e.values, e.present
}

func (e Embedding) Present() bool {
	return e.present
}

// DocumentRecord is the read-only view of a stored document.
type DocumentRecord struct {
	ID string
	// Text is the raw content; normalization happens inside the engine.
	Text string
	// ContentHash is the digest of normalized text. Computed from Text when empty.
	ContentHash  string
	Embedding    Embedding
	CreatedAt    time.Time
	QualityScore *float64
}

// Match is a ranked single-item duplicate hit.
type Match struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

// Relation is a detected pairwise duplicate signal. A is always lexically below B.
type Relation struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Tier  Tier    `json:"tier"`
	Score float64 `json:"score"`
}

func newRelation(a, b string, tier Tier, score float64) Relation {
	if b < a {
		a, b = b, a
	}
	return Relation{A: a, B: b, Tier: tier, Score: score}
}

// Group is a connected component of the relation graph.
type Group struct {
	CanonicalID string   `json:"canonical_id"`
	MemberIDs   []string `json:"member_ids"`
	Tiers       []Tier   `json:"tiers"`
}

// DocumentState is the per-run lifecycle position of a document.
type DocumentState string

const (
	StateUnseen  DocumentState = "unseen"
	StateSigned  DocumentState = "signed"
	StateIndexed DocumentState = "indexed"
	StateUnique  DocumentState = "unique"
	StateGrouped DocumentState = "member_of_group"
)

// BatchResult is the outcome of one detection run.
type BatchResult struct {
	Total      int        `json:"total"`
	Unique     int        `json:"unique"`
	Duplicates int        `json:"duplicates"`
	Groups     []Group    `json:"groups"`
	Relations  []Relation `json:"relations"`

	// Partial is set when the run was cancelled; Groups is empty in that case.
	Partial bool `json:"partial"`
	// Degraded is set when some documents were excluded from a tier by a collaborator failure.
	Degraded bool `json:"degraded"`

	States map[string]DocumentState `json:"-"`
	Failed map[string]string        `json:"failed,omitempty"`
	Stats  BatchStats               `json:"stats"`
}

// BatchStats provides metrics about a detection run.
type BatchStats struct {
	NoContentCount       int   `json:"no_content_count"`
	CandidatePairs       int   `json:"candidate_pairs"`
	ExactRelations       int   `json:"exact_relations"`
	NearRelations        int   `json:"near_relations"`
	SemanticRelations    int   `json:"semantic_relations"`
	SemanticComparisons  int   `json:"semantic_comparisons"`
	SemanticUnavailable  int   `json:"semantic_unavailable"`
	EmbeddingBatches     int   `json:"embedding_batches"`
	EmbeddingBatchErrors int   `json:"embedding_batch_errors"`
	StaleEmbeddings      int   `json:"stale_embeddings"`
	ProcessingTimeMs     int64 `json:"processing_time_ms"`
}

// RemovalPlan lists what a caller may delete. Nothing is deleted by the engine.
type RemovalPlan struct {
	Kept    []string      `json:"kept"`
	Removed []RemovalItem `json:"removed"`
}

type RemovalItem struct {
	DocumentID  string `json:"document_id"`
	CanonicalID string `json:"canonical_id"`
	Tiers       []Tier `json:"tiers"`
}
