package dedup

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// SignatureCache stores signatures keyed by content hash.
type SignatureCache interface {
	Get(contentHash string) (Signature, bool)
	Add(contentHash string, sig Signature)
}

type lruSignatureCache struct {
	cache *lru.Cache[string, Signature]
}

// NewLRUSignatureCache returns an in-memory cache, or nil when size <= 0.
func NewLRUSignatureCache(size int) SignatureCache {
	if size <= 0 {
		return nil
	}
	cache, err := lru.New[string, Signature](size)
	if err != nil {
		return nil
	}
	return &lruSignatureCache{cache: cache}
}

func (c *lruSignatureCache) Get(contentHash string) (Signature, bool) {
	return c.cache.Get(contentHash)
}

func (c *lruSignatureCache) Add(contentHash string, sig Signature) {
	c.cache.Add(contentHash, sig)
}
