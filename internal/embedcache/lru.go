package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdedup/internal/ai"
)

type LRUEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
	stats counters
}

// WrapLRU returns e unchanged when size or ttl disable the cache.
func WrapLRU(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return NewLRUEmbedder(e, size, ttl)
}

func NewLRUEmbedder(e ai.IEmbedder, size int, ttl time.Duration) *LRUEmbedder {
	return &LRUEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (l *LRUEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := newCacheKey(l.next.ModelName(), taskType, text).String()
	if cached, ok := l.cache.Get(key); ok {
		l.stats.hits.Add(1)
		logutil.GetLogger(ctx).Debug("embedding cache hit", zap.String("layer", "lru"), zap.String("task_type", taskType))
		return cloneEmbedding(cached), nil
	}
	l.stats.misses.Add(1)
	res, err := l.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneEmbedding(res))
	return res, nil
}

func (l *LRUEmbedder) ModelName() string {
	return l.next.ModelName()
}

func (l *LRUEmbedder) Stats() Stats {
	return l.stats.snapshot()
}
