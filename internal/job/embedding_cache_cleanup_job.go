package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type CacheCleaner interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

// cacheCounter is implemented by caches that can report their size after a sweep.
type cacheCounter interface {
	CountByModel(ctx context.Context) (map[string]int64, error)
}

type SignatureCleaner interface {
	DeleteOtherFingerprints(ctx context.Context, fingerprint string) (int64, error)
}

// EmbeddingCacheCleanupJob expires old embedding cache rows and drops
// signatures produced by a previous signer configuration.
type EmbeddingCacheCleanupJob struct {
	cache       CacheCleaner
	signatures  SignatureCleaner
	fingerprint string
	maxAgeDays  int
}

func NewEmbeddingCacheCleanupJob(cache CacheCleaner, signatures SignatureCleaner, fingerprint string, maxAgeDays int) *EmbeddingCacheCleanupJob {
	return &EmbeddingCacheCleanupJob{cache: cache, signatures: signatures, fingerprint: fingerprint, maxAgeDays: maxAgeDays}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	if j.cache != nil {
		maxAgeDays := j.maxAgeDays
		if maxAgeDays <= 0 {
			maxAgeDays = 30
		}
		cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
		n, err := j.cache.DeleteBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		logger.Info("embedding cache cleaned", zap.Int64("deleted", n))
		if counter, ok := j.cache.(cacheCounter); ok {
			counts, err := counter.CountByModel(ctx)
			if err != nil {
				logger.Warn("count embedding cache failed", zap.Error(err))
			}
			for name, total := range counts {
				logger.Info("embedding cache remaining", zap.String("model", name), zap.Int64("entries", total))
			}
		}
	}
	if j.signatures != nil && j.fingerprint != "" {
		n, err := j.signatures.DeleteOtherFingerprints(ctx, j.fingerprint)
		if err != nil {
			return err
		}
		logger.Info("stale signatures cleaned", zap.Int64("deleted", n))
	}
	return nil
}
