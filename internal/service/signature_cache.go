package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdedup/internal/dedup"
	"github.com/xxxsen/mdedup/internal/model"
)

const signatureStoreTimeout = 2 * time.Second

type SignatureStore interface {
	Get(ctx context.Context, contentHash, fingerprint string) ([]uint64, bool, error)
	Save(ctx context.Context, sig *model.MinHashSignature) error
}

// layeredSignatureCache keeps hot signatures in memory and falls back to the
// database. Store errors only cost a re-sign.
type layeredSignatureCache struct {
	mem         dedup.SignatureCache
	store       SignatureStore
	fingerprint string
}

// NewSignatureCache layers store behind an in-memory LRU of memSize entries.
// Signatures are only reused under the same shingling and signer settings.
func NewSignatureCache(cfg dedup.Config, store SignatureStore) dedup.SignatureCache {
	mem := dedup.NewLRUSignatureCache(cfg.SignatureCacheSize)
	if store == nil {
		return mem
	}
	return &layeredSignatureCache{
		mem:         mem,
		store:       store,
		fingerprint: dedup.SketchFingerprint(cfg),
	}
}

func (c *layeredSignatureCache) Get(contentHash string) (dedup.Signature, bool) {
	if c.mem != nil {
		if sig, ok := c.mem.Get(contentHash); ok {
			return sig, true
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), signatureStoreTimeout)
	defer cancel()
	values, ok, err := c.store.Get(ctx, contentHash, c.fingerprint)
	if err != nil {
		logutil.GetLogger(ctx).Warn("load signature failed", zap.String("content_hash", contentHash), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	sig := dedup.Signature(values)
	if c.mem != nil {
		c.mem.Add(contentHash, sig)
	}
	return sig, true
}

func (c *layeredSignatureCache) Add(contentHash string, sig dedup.Signature) {
	if c.mem != nil {
		c.mem.Add(contentHash, sig)
	}
	ctx, cancel := context.WithTimeout(context.Background(), signatureStoreTimeout)
	defer cancel()
	if err := c.store.Save(ctx, &model.MinHashSignature{
		ContentHash: contentHash,
		Fingerprint: c.fingerprint,
		Signature:   []uint64(sig),
		Ctime:       time.Now().Unix(),
	}); err != nil {
		logutil.GetLogger(ctx).Warn("save signature failed", zap.String("content_hash", contentHash), zap.Error(err))
	}
}
