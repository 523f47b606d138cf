package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mdedup/internal/config"
)

type stubEmbedder struct {
	name  string
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func (s *stubEmbedder) ModelName() string {
	return s.name
}

func TestGroupEmbedderFallsBack(t *testing.T) {
	first := &stubEmbedder{name: "a", err: errors.New("quota")}
	second := &stubEmbedder{name: "b", vec: []float32{1, 2}}
	g := NewGroupEmbedder([]EmbedderEntry{
		{Name: "a", Embedder: first},
		{Name: "skipped"},
		{Name: "b", Embedder: second},
	})
	vec, err := g.Embed(context.Background(), "text", "")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, "a|skipped|b", g.ModelName())
}

func TestGroupEmbedderReturnsLastError(t *testing.T) {
	errB := errors.New("b down")
	g := NewGroupEmbedder([]EmbedderEntry{
		{Name: "a", Embedder: &stubEmbedder{err: errors.New("a down")}},
		{Name: "b", Embedder: &stubEmbedder{err: errB}},
	})
	_, err := g.Embed(context.Background(), "text", "")
	require.ErrorIs(t, err, errB)
	assert.Nil(t, NewGroupEmbedder(nil))
}

func TestNewEmbedProviderRegistry(t *testing.T) {
	_, err := NewEmbedProvider("", nil)
	require.Error(t, err)
	_, err = NewEmbedProvider("nope", map[string]interface{}{})
	require.Error(t, err)
	p, err := NewEmbedProvider(" Gemini ", map[string]interface{}{"api_key": ""})
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())
	_, err = p.Embed(context.Background(), "m", "text", "")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAICompatEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "mdedup", r.Header.Get("X-Title"))
		var req openAIEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embed-small", req.Model)
		assert.Equal(t, "hello", req.Input)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,0.25]}]}`))
	}))
	defer srv.Close()

	p, err := NewEmbedProvider("openrouter", map[string]interface{}{
		"api_key":  "k",
		"base_url": srv.URL + "/v1",
		"x_title":  "mdedup",
	})
	require.NoError(t, err)
	vec, err := NewEmbedder(p, "embed-small").Embed(context.Background(), "hello", "SEMANTIC_SIMILARITY")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
}

func TestOpenAICompatEmbedHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := NewEmbedProvider("openai", map[string]interface{}{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), "m", "hello", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestBuildEmbedder(t *testing.T) {
	e, err := BuildEmbedder(nil)
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = BuildEmbedder([]config.EmbeddingProviderConfig{
		{Provider: "openai", Model: "text-embedding-3-small", Data: map[string]interface{}{"api_key": "k"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "openai:text-embedding-3-small", e.ModelName())

	_, err = BuildEmbedder([]config.EmbeddingProviderConfig{{Provider: "missing", Data: map[string]interface{}{}}})
	require.Error(t, err)
}

func TestGroupEmbedderDisablesUnavailableEntry(t *testing.T) {
	missing := &stubEmbedder{err: ErrUnavailable}
	backup := &stubEmbedder{vec: []float32{3}}
	g := NewGroupEmbedder([]EmbedderEntry{
		{Name: "missing", Embedder: missing},
		{Name: "backup", Embedder: backup},
	})
	for i := 0; i < 3; i++ {
		vec, err := g.Embed(context.Background(), "text", "")
		require.NoError(t, err)
		assert.Equal(t, []float32{3}, vec)
	}
	assert.Equal(t, 1, missing.calls)
	assert.Equal(t, 3, backup.calls)

	all := NewGroupEmbedder([]EmbedderEntry{{Name: "missing", Embedder: &stubEmbedder{err: ErrUnavailable}}})
	_, err := all.Embed(context.Background(), "text", "")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = all.Embed(context.Background(), "text", "")
	require.ErrorIs(t, err, ErrUnavailable)
}
