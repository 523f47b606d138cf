package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/mdedup/internal/ai"
	"github.com/xxxsen/mdedup/internal/config"
	"github.com/xxxsen/mdedup/internal/dedup"
	"github.com/xxxsen/mdedup/internal/model"
	appErr "github.com/xxxsen/mdedup/internal/pkg/errors"
	"github.com/xxxsen/mdedup/internal/repo"
	"github.com/xxxsen/mdedup/internal/textextract"
)

type EmbeddingStore interface {
	Save(ctx context.Context, emb *model.DocumentEmbedding) error
	GetByDocID(ctx context.Context, docID string) (*model.DocumentEmbedding, error)
	ListByDocIDs(ctx context.Context, docIDs []string) (map[string]*model.DocumentEmbedding, error)
	ListStaleDocuments(ctx context.Context, before int64, cursor repo.StaleCursor, limit int) ([]model.Document, error)
	Touch(ctx context.Context, docID string, mtime int64) error
}

// EmbeddingService keeps document vectors current and serves them to the
// semantic tier. A nil embedder disables syncing; stored vectors are still served.
type EmbeddingService struct {
	embedder  ai.IEmbedder
	store     EmbeddingStore
	taskType  string
	batchSize int
	limiter   *rate.Limiter
}

func NewEmbeddingService(embedder ai.IEmbedder, store EmbeddingStore, cfg config.EmbeddingConfig) *EmbeddingService {
	batch := cfg.SyncBatchSize
	if batch <= 0 {
		batch = 100
	}
	limit := rate.Inf
	if cfg.SyncRatePerSecond > 0 {
		limit = rate.Limit(cfg.SyncRatePerSecond)
	}
	return &EmbeddingService{
		embedder:  embedder,
		store:     store,
		taskType:  cfg.TaskType,
		batchSize: batch,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

func (s *EmbeddingService) Enabled() bool {
	return s != nil && s.embedder != nil
}

// Embeddings implements dedup.EmbeddingProvider over the stored vectors.
func (s *EmbeddingService) Embeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	stored, err := s.store.ListByDocIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float32, len(stored))
	for id, emb := range stored {
		out[id] = emb.Embedding
	}
	return out, nil
}

// HashedEmbeddings is Embeddings plus the content hash each vector was made
// from, so vectors of documents edited since the last sync are not used.
func (s *EmbeddingService) HashedEmbeddings(ctx context.Context, ids []string) (map[string]dedup.HashedEmbedding, error) {
	stored, err := s.store.ListByDocIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]dedup.HashedEmbedding, len(stored))
	for id, emb := range stored {
		out[id] = dedup.HashedEmbedding{Vector: emb.Embedding, ContentHash: emb.ContentHash}
	}
	return out, nil
}

// SyncDocument embeds doc unless its stored vector already matches the
// current text. It reports whether the provider was called.
func (s *EmbeddingService) SyncDocument(ctx context.Context, doc model.Document) (bool, error) {
	if !s.Enabled() {
		return false, ai.ErrUnavailable
	}
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", doc.UserID), zap.String("doc_id", doc.ID))
	now := time.Now().UnixMilli()
	text := textextract.Document(doc.Title, doc.Content)
	contentHash := dedup.ContentHash(text)
	existing, err := s.store.GetByDocID(ctx, doc.ID)
	if err != nil && !appErr.IsNotFound(err) {
		return false, err
	}
	if contentHash == "" || (existing != nil && existing.ContentHash == contentHash) {
		if existing != nil {
			return false, s.store.Touch(ctx, doc.ID, now)
		}
		logger.Debug("document has no content, skip embedding")
		return false, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return false, err
	}
	vec, err := s.embedder.Embed(ctx, text, s.taskType)
	if err != nil {
		logger.Error("failed to generate embedding", zap.Error(err))
		return false, err
	}
	if err := s.store.Save(ctx, &model.DocumentEmbedding{
		DocumentID:  doc.ID,
		UserID:      doc.UserID,
		Embedding:   vec,
		ContentHash: contentHash,
		Mtime:       now,
	}); err != nil {
		logger.Error("failed to save embedding", zap.Error(err))
		return false, err
	}
	logger.Debug("embedding synced", zap.Int("dim", len(vec)))
	return true, nil
}

// SyncPending embeds every stale document edited at least delaySeconds ago.
// A failing document is logged and skipped; the next run picks it up again.
func (s *EmbeddingService) SyncPending(ctx context.Context, delaySeconds int64) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	logger := logutil.GetLogger(ctx)
	before := time.Now().Add(-time.Duration(delaySeconds) * time.Second).UnixMilli()
	cursor := repo.StaleCursor{}
	synced, failed := 0, 0
	for {
		docs, err := s.store.ListStaleDocuments(ctx, before, cursor, s.batchSize)
		if err != nil {
			return synced, err
		}
		for _, doc := range docs {
			embedded, err := s.SyncDocument(ctx, doc)
			if err != nil {
				if ctx.Err() != nil {
					return synced, ctx.Err()
				}
				failed++
				continue
			}
			if embedded {
				synced++
			}
		}
		if len(docs) < s.batchSize {
			break
		}
		last := docs[len(docs)-1]
		cursor = repo.StaleCursor{Mtime: last.Mtime, ID: last.ID}
	}
	if synced > 0 || failed > 0 {
		logger.Info("embedding sync finished", zap.Int("synced", synced), zap.Int("failed", failed))
	}
	return synced, nil
}
