package dedup

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the hex SHA-256 of the normalized text, or "" when nothing survives normalization.
func ContentHash(text string) string {
	return hashNormalized(Normalize(text))
}

func hashNormalized(normalized string) string {
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ExactMatcher compares documents by normalized content hash.
type ExactMatcher struct{}

func NewExactMatcher() *ExactMatcher {
	return &ExactMatcher{}
}

// IsDuplicate reports whether both records hash to the same non-empty digest.
func (m *ExactMatcher) IsDuplicate(a, b DocumentRecord) bool {
	ha, hb := recordHash(a), recordHash(b)
	return ha != "" && ha == hb
}

// recordHash trusts a precomputed hash. ContentHash of empty text is itself
// empty, so empty documents never match.
func recordHash(r DocumentRecord) string {
	if r.ContentHash != "" {
		return r.ContentHash
	}
	return ContentHash(r.Text)
}
