package dedup

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func seqSignature(start uint64, n int) Signature {
	sig := make(Signature, n)
	for i := range sig {
		sig[i] = start + uint64(i)
	}
	return sig
}

func TestLSHIndexCandidates(t *testing.T) {
	idx := NewLSHIndex(4, 4)
	sig := seqSignature(1, 16)
	require.NoError(t, idx.Add("b", sig))
	require.NoError(t, idx.Add("a", sig))
	require.NoError(t, idx.Add("c", seqSignature(100, 16)))

	require.Equal(t, []string{"a", "b"}, idx.Candidates(sig, ""))
	require.Equal(t, []string{"b"}, idx.Candidates(sig, "a"))
	require.Equal(t, 3, idx.Len())
	require.Equal(t, []string{"a", "b", "c"}, idx.IDs())
}

func TestLSHIndexSingleBandCollision(t *testing.T) {
	idx := NewLSHIndex(4, 4)
	base := seqSignature(1, 16)
	other := seqSignature(1000, 16)
	copy(other[8:12], base[8:12])
	require.NoError(t, idx.Add("x", other))
	require.Equal(t, []string{"x"}, idx.Candidates(base, ""))
}

func TestLSHIndexRejectsWrongLength(t *testing.T) {
	idx := NewLSHIndex(4, 4)
	require.Error(t, idx.Add("a", seqSignature(1, 15)))
	require.Equal(t, 0, idx.Len())
}

func TestLSHIndexReAddReplaces(t *testing.T) {
	idx := NewLSHIndex(4, 4)
	first := seqSignature(1, 16)
	second := seqSignature(500, 16)
	require.NoError(t, idx.Add("a", first))
	require.NoError(t, idx.Add("a", second))

	require.Empty(t, idx.Candidates(first, ""))
	require.Equal(t, []string{"a"}, idx.Candidates(second, ""))
	require.Equal(t, 4, idx.Stats().TotalBuckets)
}

func TestLSHIndexRemove(t *testing.T) {
	idx := NewLSHIndex(4, 4)
	sig := seqSignature(1, 16)
	require.NoError(t, idx.Add("a", sig))
	idx.Remove("a")
	idx.Remove("missing")
	require.Empty(t, idx.Candidates(sig, ""))
	_, ok := idx.Signature("a")
	require.False(t, ok)
	require.Equal(t, 0, idx.Stats().TotalBuckets)
}

func TestLSHIndexStats(t *testing.T) {
	idx := NewLSHIndex(2, 2)
	require.NoError(t, idx.Add("a", seqSignature(1, 4)))
	require.NoError(t, idx.Add("b", seqSignature(1, 4)))
	st := idx.Stats()
	require.Equal(t, 2, st.NumSignatures)
	require.Equal(t, 2, st.NumBands)
	require.Equal(t, 2, st.RowsPerBand)
	require.Equal(t, 2, st.TotalBuckets)
	require.Equal(t, 2, st.MaxBucketSize)
}

func TestLSHIndexConcurrentAccess(t *testing.T) {
	idx := NewLSHIndex(4, 4)
	sig := seqSignature(1, 16)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			_ = idx.Add(id, sig)
			_ = idx.Candidates(sig, id)
		}(i)
	}
	wg.Wait()
	require.Len(t, idx.Candidates(sig, ""), 8)
}
