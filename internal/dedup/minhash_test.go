package dedup

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func numberedSet(from, to int) ShingleSet {
	set := make(ShingleSet, to-from)
	for i := from; i < to; i++ {
		set[fmt.Sprintf("s%d", i)] = struct{}{}
	}
	return set
}

func TestSignEmptySet(t *testing.T) {
	_, err := NewSigner(16, 1).Sign(ShingleSet{})
	require.ErrorIs(t, err, ErrNoContent)
	require.True(t, IsNoContent(err))
}

func TestSignDeterministic(t *testing.T) {
	set := numberedSet(0, 40)
	a, err := NewSigner(64, 7).Sign(set)
	require.NoError(t, err)
	b, err := NewSigner(64, 7).Sign(set)
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := NewSigner(64, 8).Sign(set)
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestEstimateJaccardSelfAndSymmetry(t *testing.T) {
	signer := NewSigner(128, 1)
	a, err := signer.Sign(numberedSet(0, 60))
	require.NoError(t, err)
	b, err := signer.Sign(numberedSet(20, 90))
	require.NoError(t, err)

	require.Equal(t, 1.0, EstimateJaccard(a, a))
	require.Equal(t, EstimateJaccard(a, b), EstimateJaccard(b, a))
}

func TestEstimateJaccardLengthMismatch(t *testing.T) {
	require.Equal(t, 0.0, EstimateJaccard(Signature{1, 2}, Signature{1, 2, 3}))
	require.Equal(t, 0.0, EstimateJaccard(nil, nil))
}

func TestEstimateJaccardConverges(t *testing.T) {
	a := numberedSet(0, 100)
	b := numberedSet(50, 150)
	want := a.Jaccard(b)
	require.InDelta(t, 1.0/3.0, want, 1e-9)

	signer := NewSigner(4096, 1)
	sa, err := signer.Sign(a)
	require.NoError(t, err)
	sb, err := signer.Sign(b)
	require.NoError(t, err)
	require.Less(t, math.Abs(EstimateJaccard(sa, sb)-want), 0.03)
}

func TestSignerFingerprint(t *testing.T) {
	require.Equal(t, "minhash-v1:p128:s1", NewSigner(128, 1).Fingerprint())
	require.NotEqual(t, NewSigner(128, 1).Fingerprint(), NewSigner(128, 2).Fingerprint())
}
