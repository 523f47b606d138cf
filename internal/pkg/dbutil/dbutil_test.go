package dbutil

import (
	"errors"
	"math"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalizeRewritesLimit(t *testing.T) {
	query, args := Finalize("SELECT id FROM documents WHERE user_id = ? LIMIT ?,?", []interface{}{"u1", uint(20), uint(10)})
	require.Equal(t, "SELECT id FROM documents WHERE user_id = $1 LIMIT $2 OFFSET $3", query)
	require.Equal(t, []interface{}{"u1", uint(10), uint(20)}, args)
}

func TestFinalizeWithoutLimit(t *testing.T) {
	query, args := Finalize("UPDATE documents SET state = ? WHERE id = ?", []interface{}{2, "d1"})
	require.Equal(t, "UPDATE documents SET state = $1 WHERE id = $2", query)
	require.Equal(t, []interface{}{2, "d1"}, args)
}

func TestUint64ArrayRoundTrip(t *testing.T) {
	in := []uint64{0, 1, math.MaxUint64, 1 << 63}
	arr := Uint64Array(in)
	require.Equal(t, int64(-1), arr[2])
	require.Equal(t, in, FromInt64Array(arr))
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&pq.Error{Code: "23505"}))
	require.False(t, IsConflict(&pq.Error{Code: "23503"}))
	require.False(t, IsConflict(errors.New("boom")))
}
