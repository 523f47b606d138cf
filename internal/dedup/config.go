package dedup

import (
	"fmt"
	"math"
)

// ShingleMode selects the unit of a shingle window.
type ShingleMode string

const (
	ShingleTokens ShingleMode = "token"
	ShingleChars  ShingleMode = "char"
)

// Config holds every tunable of the detection engine.
type Config struct {
	// ShingleSize is the window length k, counted in tokens or runes depending on ShingleMode.
	// Default: 5 tokens
	ShingleSize int         `json:"shingle_size"`
	ShingleMode ShingleMode `json:"shingle_mode"`

	// NumPermutations is the MinHash signature length and must equal NumBands * RowsPerBand.
	// Default: 128
	NumPermutations int `json:"num_permutations"`

	// NumBands and RowsPerBand shape the LSH candidate curve 1-(1-s^r)^b.
	// More bands (fewer rows each) = higher recall, more false-positive candidates to verify.
	// Default: 16 bands x 8 rows (curve midpoint near s=0.71)
	NumBands    int `json:"num_bands"`
	RowsPerBand int `json:"rows_per_band"`

	// NearThreshold is the minimum estimated Jaccard for the near tier.
	// Default: 0.95
	NearThreshold float64 `json:"near_threshold"`

	// SemanticThreshold is the minimum cosine similarity for the semantic tier.
	// Default: 0.92
	SemanticThreshold float64 `json:"semantic_threshold"`

	EnableExact    bool `json:"enable_exact"`
	EnableNear     bool `json:"enable_near"`
	EnableSemantic bool `json:"enable_semantic"`

	// Workers bounds the number of goroutines signing documents in a batch.
	// Default: 4
	Workers int `json:"workers"`

	// EmbeddingBatchSize is the number of ids requested from the embedding provider per call.
	// Default: 64
	EmbeddingBatchSize int `json:"embedding_batch_size"`

	// SignatureCacheSize bounds the in-memory signature cache keyed by content hash.
	// 0 disables it. Default: 4096
	SignatureCacheSize int `json:"signature_cache_size"`

	// Seed perturbs every permutation hash. Signatures are only comparable under the same seed.
	// Default: 1
	Seed uint64 `json:"seed"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ShingleSize:        5,
		ShingleMode:        ShingleTokens,
		NumPermutations:    128,
		NumBands:           16,
		RowsPerBand:        8,
		NearThreshold:      0.95,
		SemanticThreshold:  0.92,
		EnableExact:        true,
		EnableNear:         true,
		EnableSemantic:     true,
		Workers:            4,
		EmbeddingBatchSize: 64,
		SignatureCacheSize: 4096,
		Seed:               1,
	}
}

// Validate checks the configuration once, before any document is processed.
func (c Config) Validate() error {
	if c.ShingleSize <= 0 {
		return configErrorf("shingle_size", "must be positive (got %d)", c.ShingleSize)
	}
	if c.ShingleSize > 64 {
		return configErrorf("shingle_size", "too large (got %d, max 64)", c.ShingleSize)
	}
	if c.ShingleMode != ShingleTokens && c.ShingleMode != ShingleChars {
		return configErrorf("shingle_mode", "must be %q or %q (got %q)", ShingleTokens, ShingleChars, c.ShingleMode)
	}
	if c.NumPermutations <= 0 {
		return configErrorf("num_permutations", "must be positive (got %d)", c.NumPermutations)
	}
	if c.NumPermutations > 4096 {
		return configErrorf("num_permutations", "too large (got %d, max 4096)", c.NumPermutations)
	}
	if c.NumBands <= 0 || c.RowsPerBand <= 0 {
		return configErrorf("num_bands", "and rows_per_band must be positive (got %d x %d)", c.NumBands, c.RowsPerBand)
	}
	if c.NumBands*c.RowsPerBand != c.NumPermutations {
		return configErrorf("num_bands", "x rows_per_band must equal num_permutations (got %d x %d != %d)",
			c.NumBands, c.RowsPerBand, c.NumPermutations)
	}
	if err := validateThreshold("near_threshold", c.NearThreshold); err != nil {
		return err
	}
	if err := validateThreshold("semantic_threshold", c.SemanticThreshold); err != nil {
		return err
	}
	if !c.EnableExact && !c.EnableNear && !c.EnableSemantic {
		return configErrorf("enable_*", "at least one tier must be enabled")
	}
	if c.Workers <= 0 {
		return configErrorf("workers", "must be positive (got %d)", c.Workers)
	}
	if c.Workers > 256 {
		return configErrorf("workers", "too large (got %d, max 256)", c.Workers)
	}
	if c.EmbeddingBatchSize <= 0 {
		return configErrorf("embedding_batch_size", "must be positive (got %d)", c.EmbeddingBatchSize)
	}
	if c.SignatureCacheSize < 0 {
		return configErrorf("signature_cache_size", "cannot be negative (got %d)", c.SignatureCacheSize)
	}
	return nil
}

// SketchFingerprint identifies every setting a signature depends on: the
// shingling as well as the permutation family. Persisted signatures must be
// keyed by it.
func SketchFingerprint(c Config) string {
	signer := NewSigner(c.NumPermutations, c.Seed).Fingerprint()
	return fmt.Sprintf("%s:%s:k%d", signer, c.ShingleMode, c.ShingleSize)
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Shingle: %d %s, Perms: %d (%dx%d), Near: %.2f, Semantic: %.2f, "+
			"Tiers: exact=%t near=%t semantic=%t, Workers: %d, EmbedBatch: %d, SigCache: %d, Seed: %d}",
		c.ShingleSize, c.ShingleMode, c.NumPermutations, c.NumBands, c.RowsPerBand,
		c.NearThreshold, c.SemanticThreshold, c.EnableExact, c.EnableNear, c.EnableSemantic,
		c.Workers, c.EmbeddingBatchSize, c.SignatureCacheSize, c.Seed,
	)
}

func validateThreshold(field string, v float64) error {
	if math.IsNaN(v) || v < 0.0 || v > 1.0 {
		return configErrorf(field, "must be between 0.0 and 1.0 (got %.2f)", v)
	}
	return nil
}
