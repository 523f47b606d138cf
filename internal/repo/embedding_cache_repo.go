package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/mdedup/internal/model"
	"github.com/xxxsen/mdedup/internal/pkg/dbutil"
)

// EmbeddingCacheRepo stores provider vectors by (model, task type, text hash).
// Entries outlive the documents that produced them; the cleanup job expires them by ctime.
type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	where := map[string]interface{}{
		"model_name":   modelName,
		"task_type":    taskType,
		"content_hash": contentHash,
	}
	sqlStr, args, err := builder.BuildSelect("embedding_cache", where, []string{"embedding"})
	if err != nil {
		return nil, false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var vec pgvector.Vector
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&vec); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached embedding: %w", err)
	}
	return vec.Slice(), true, nil
}

// Save upserts item. A newer vector for the same key replaces the old one and
// restarts its expiry.
func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	const upsert = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model_name, task_type, content_hash)
		DO UPDATE SET embedding = EXCLUDED.embedding, ctime = EXCLUDED.ctime
	`
	if len(item.Embedding) == 0 {
		return fmt.Errorf("save cached embedding: empty vector")
	}
	if _, err := r.db.ExecContext(ctx, upsert, item.ModelName, item.TaskType, item.ContentHash,
		pgvector.NewVector(item.Embedding), item.Ctime); err != nil {
		return fmt.Errorf("save cached embedding: %w", err)
	}
	return nil
}

// DeleteBefore drops entries created before cutoff (unix seconds).
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete("embedding_cache", map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByModel reports how many cached vectors each model name holds.
func (r *EmbeddingCacheRepo) CountByModel(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT model_name, COUNT(1) FROM embedding_cache GROUP BY model_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}
