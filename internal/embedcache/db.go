package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdedup/internal/ai"
	"github.com/xxxsen/mdedup/internal/model"
)

// Store is the persistent side of the cache, implemented by repo.EmbeddingCacheRepo.
type Store interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

type DBEmbedder struct {
	next  ai.IEmbedder
	store Store
	stats counters
}

func WrapDB(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &DBEmbedder{next: e, store: store}
}

// Embed consults the store first. A failing store read falls through to the
// embedder, and a failing write is only logged.
func (d *DBEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := newCacheKey(d.next.ModelName(), taskType, text)
	values, ok, err := d.store.Get(ctx, key.model, taskType, key.contentHash)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read embedding cache failed", zap.Error(err))
	}
	if ok && len(values) > 0 {
		d.stats.hits.Add(1)
		logutil.GetLogger(ctx).Debug("embedding cache hit", zap.String("layer", "db"), zap.String("task_type", taskType))
		return values, nil
	}
	d.stats.misses.Add(1)
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := d.store.Save(ctx, &model.EmbeddingCache{
		ModelName:   key.model,
		TaskType:    taskType,
		ContentHash: key.contentHash,
		Embedding:   res,
		Ctime:       time.Now().Unix(),
	}); err != nil {
		logutil.GetLogger(ctx).Warn("write embedding cache failed", zap.Error(err))
	}
	return res, nil
}

func (d *DBEmbedder) ModelName() string {
	return d.next.ModelName()
}

func (d *DBEmbedder) Stats() Stats {
	return d.stats.snapshot()
}
