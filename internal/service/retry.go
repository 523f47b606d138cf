package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xxxsen/mdedup/internal/config"
	"github.com/xxxsen/mdedup/internal/dedup"
)

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		Multiplier:     cfg.Multiplier,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// retry runs fn until it succeeds, attempts run out or ctx ends. Backoff grows
// by Multiplier and is capped at MaxBackoff.
func retry(ctx context.Context, p RetryPolicy, operation string, fn func(context.Context) error) error {
	backoff := p.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == p.MaxAttempts {
			break
		}
		logutil.GetLogger(ctx).Warn("operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operation, p.MaxAttempts, lastErr)
}

// retryingEmbeddings retries batch lookups and caps how many run at once.
type retryingEmbeddings struct {
	next   dedup.EmbeddingProvider
	policy RetryPolicy
	sem    *semaphore.Weighted
}

func NewRetryingEmbeddings(next dedup.EmbeddingProvider, policy RetryPolicy, concurrency int) dedup.EmbeddingProvider {
	if next == nil {
		return nil
	}
	var sem *semaphore.Weighted
	if concurrency > 0 {
		sem = semaphore.NewWeighted(int64(concurrency))
	}
	return &retryingEmbeddings{next: next, policy: policy, sem: sem}
}

func (r *retryingEmbeddings) Embeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	var out map[string][]float32
	err := r.do(ctx, func(ctx context.Context) error {
		res, err := r.next.Embeddings(ctx, ids)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HashedEmbeddings passes hashes through when next reports them. Otherwise the
// vectors come back with unknown origin.
func (r *retryingEmbeddings) HashedEmbeddings(ctx context.Context, ids []string) (map[string]dedup.HashedEmbedding, error) {
	hashed, ok := r.next.(dedup.HashedEmbeddingProvider)
	if !ok {
		vectors, err := r.Embeddings(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make(map[string]dedup.HashedEmbedding, len(vectors))
		for id, vec := range vectors {
			out[id] = dedup.HashedEmbedding{Vector: vec}
		}
		return out, nil
	}
	var out map[string]dedup.HashedEmbedding
	err := r.do(ctx, func(ctx context.Context) error {
		res, err := hashed.HashedEmbeddings(ctx, ids)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *retryingEmbeddings) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer r.sem.Release(1)
	}
	return retry(ctx, r.policy, "fetch embeddings", fn)
}
