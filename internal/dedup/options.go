package dedup

import (
	"context"
	"sort"
)

// EmbeddingProvider fetches stored embeddings in batches. Ids without a vector
// are simply absent from the returned map.
type EmbeddingProvider interface {
	Embeddings(ctx context.Context, ids []string) (map[string][]float32, error)
}

// HashedEmbedding is a stored vector with the content hash of the text it was
// computed from. An empty ContentHash means the origin is unknown.
type HashedEmbedding struct {
	Vector      []float32
	ContentHash string
}

// HashedEmbeddingProvider also reports what each vector was computed from.
// Vectors computed from other content than the record holds are not used.
type HashedEmbeddingProvider interface {
	EmbeddingProvider
	HashedEmbeddings(ctx context.Context, ids []string) (map[string]HashedEmbedding, error)
}

// fetchEmbeddings returns the usable vectors for want (id -> current content
// hash) and how many stored vectors were dropped as stale.
func fetchEmbeddings(ctx context.Context, p EmbeddingProvider, want map[string]string) (map[string][]float32, int, error) {
	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	hp, ok := p.(HashedEmbeddingProvider)
	if !ok {
		vectors, err := p.Embeddings(ctx, ids)
		return vectors, 0, err
	}
	stored, err := hp.HashedEmbeddings(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	out := make(map[string][]float32, len(stored))
	stale := 0
	for id, emb := range stored {
		current, ok := want[id]
		if !ok {
			continue
		}
		if emb.ContentHash != "" && current != "" && emb.ContentHash != current {
			stale++
			continue
		}
		out[id] = emb.Vector
	}
	return out, stale, nil
}

type options struct {
	cache      SignatureCache
	cacheSet   bool
	embeddings EmbeddingProvider
}

type Option func(*options)

// WithSignatureCache replaces the default in-memory cache. A nil cache disables caching.
func WithSignatureCache(c SignatureCache) Option {
	return func(o *options) {
		o.cache = c
		o.cacheSet = true
	}
}

func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *options) {
		o.embeddings = p
	}
}

func applyOptions(cfg Config, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.cacheSet {
		o.cache = NewLRUSignatureCache(cfg.SignatureCacheSize)
	}
	return o
}

// sketcher turns normalized text into a signature, going through the cache.
type sketcher struct {
	shingler *Shingler
	signer   *Signer
	cache    SignatureCache
}

func newSketcher(cfg Config, cache SignatureCache) *sketcher {
	return &sketcher{
		shingler: NewShingler(cfg.ShingleSize, cfg.ShingleMode),
		signer:   NewSigner(cfg.NumPermutations, cfg.Seed),
		cache:    cache,
	}
}

func (s *sketcher) sign(normalized, hash string) (Signature, error) {
	if normalized == "" {
		return nil, ErrNoContent
	}
	if s.cache != nil {
		if sig, ok := s.cache.Get(hash); ok && len(sig) == s.signer.NumPermutations() {
			return sig, nil
		}
	}
	sig, err := s.signer.Sign(s.shingler.ShingleNormalized(normalized))
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Add(hash, sig)
	}
	return sig, nil
}

// sketchText normalizes and signs raw text, returning the content hash as well.
func (s *sketcher) sketchText(text string) (string, Signature, error) {
	normalized := Normalize(text)
	if normalized == "" {
		return "", nil, ErrNoContent
	}
	hash := hashNormalized(normalized)
	sig, err := s.sign(normalized, hash)
	if err != nil {
		return "", nil, err
	}
	return hash, sig, nil
}
