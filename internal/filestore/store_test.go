package filestore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mdedup/internal/config"
)

func TestNewEmptyTypeDisablesStore(t *testing.T) {
	s, err := New(config.FileStoreConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
}

func TestLocalStoreSaveAndOpen(t *testing.T) {
	s, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, SaveBytes(ctx, s, "run-1.json", []byte(`{"total":3}`)))
	require.NoError(t, SaveBytes(ctx, s, "run-1.json", []byte(`{"total":4}`)))

	rc, err := s.Open(ctx, "run-1.json")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"total":4}`, string(data))
}

func TestLocalStoreRejectsBadKeys(t *testing.T) {
	s, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	for _, key := range []string{"", "..", "a/b.json", `a\b`, "sp ace"} {
		assert.Error(t, SaveBytes(context.Background(), s, key, []byte("x")), key)
	}
}

func TestLocalStoreRequiresDir(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{}})
	require.Error(t, err)
}
