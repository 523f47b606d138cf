package dedup

import (
	"fmt"
	"math"
)

// Signature is a MinHash signature: one minimum per permutation.
type Signature []uint64

const (
	fnvOffsetBasis64 uint64 = 14695981039346656037
	fnvPrime64       uint64 = 1099511628211
	golden64         uint64 = 0x9E3779B97F4A7C15
)

// Signer computes MinHash signatures with numPermutations seeded permutations of a
// single well-mixed 64-bit hash.
type Signer struct {
	seeds []uint64
	seed  uint64
}

func NewSigner(numPermutations int, seed uint64) *Signer {
	seeds := make([]uint64, numPermutations)
	state := seed
	for i := range seeds {
		state += golden64
		seeds[i] = mix64(state)
	}
	return &Signer{seeds: seeds, seed: seed}
}

func (s *Signer) NumPermutations() int {
	return len(s.seeds)
}

// Fingerprint identifies the permutation family. Signatures with different
// fingerprints are not comparable.
func (s *Signer) Fingerprint() string {
	return fmt.Sprintf("minhash-v1:p%d:s%d", len(s.seeds), s.seed)
}

// Sign returns the signature of a shingle set, or ErrNoContent for an empty set.
func (s *Signer) Sign(shingles ShingleSet) (Signature, error) {
	if len(shingles) == 0 {
		return nil, ErrNoContent
	}
	sig := make(Signature, len(s.seeds))
	for i := range sig {
		sig[i] = math.MaxUint64
	}
	for sh := range shingles {
		base := hashString(sh)
		for i, seed := range s.seeds {
			if v := mix64(base ^ seed); v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig, nil
}

// EstimateJaccard is the fraction of positions on which two signatures agree.
// Signatures of different lengths are not comparable and score 0.
func EstimateJaccard(a, b Signature) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

func hashString(s string) uint64 {
	h := fnvOffsetBasis64
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

// mix64 is the SplitMix64 finalizer.
func mix64(x uint64) uint64 {
	x += golden64
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}
