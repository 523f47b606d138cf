package repo

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/mdedup/internal/model"
	appErr "github.com/xxxsen/mdedup/internal/pkg/errors"
)

type EmbeddingRepo struct {
	db *sql.DB
}

func NewEmbeddingRepo(db *sql.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

func (r *EmbeddingRepo) Save(ctx context.Context, emb *model.DocumentEmbedding) error {
	const query = `
		INSERT INTO document_embeddings (document_id, user_id, embedding, content_hash, mtime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content_hash = EXCLUDED.content_hash,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		emb.DocumentID,
		emb.UserID,
		pgvector.NewVector(emb.Embedding),
		emb.ContentHash,
		emb.Mtime,
	)
	return err
}

func (r *EmbeddingRepo) GetByDocID(ctx context.Context, docID string) (*model.DocumentEmbedding, error) {
	const query = `
		SELECT document_id, user_id, embedding, content_hash, mtime
		FROM document_embeddings
		WHERE document_id = $1
	`
	var item model.DocumentEmbedding
	var vec pgvector.Vector
	err := r.db.QueryRowContext(ctx, query, docID).Scan(&item.DocumentID, &item.UserID, &vec, &item.ContentHash, &item.Mtime)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	item.Embedding = vec.Slice()
	return &item, nil
}

// ListByDocIDs returns the stored vectors for docIDs keyed by document id,
// each with the content hash it was computed from. Documents without a vector
// are absent from the map.
func (r *EmbeddingRepo) ListByDocIDs(ctx context.Context, docIDs []string) (map[string]*model.DocumentEmbedding, error) {
	out := make(map[string]*model.DocumentEmbedding, len(docIDs))
	if len(docIDs) == 0 {
		return out, nil
	}
	const query = `
		SELECT document_id, user_id, embedding, content_hash, mtime
		FROM document_embeddings
		WHERE document_id = ANY($1)
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(docIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item model.DocumentEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&item.DocumentID, &item.UserID, &vec, &item.ContentHash, &item.Mtime); err != nil {
			return nil, err
		}
		item.Embedding = vec.Slice()
		out[item.DocumentID] = &item
	}
	return out, rows.Err()
}

// StaleCursor marks the last document returned by ListStaleDocuments.
type StaleCursor struct {
	Mtime int64
	ID    string
}

// ListStaleDocuments pages through live documents with no vector or a vector
// older than the document, ignoring documents edited after before (unix millis).
// Pages are ordered by (mtime, id) and start strictly after cursor.
func (r *EmbeddingRepo) ListStaleDocuments(ctx context.Context, before int64, cursor StaleCursor, limit int) ([]model.Document, error) {
	const query = `
		SELECT d.id, d.user_id, d.title, d.content, d.ctime, d.mtime
		FROM documents d
		LEFT JOIN document_embeddings e ON d.id = e.document_id
		WHERE (e.document_id IS NULL OR d.mtime > e.mtime)
			AND d.state = $1 AND d.mtime <= $2
			AND (d.mtime, d.id) > ($3, $4)
		ORDER BY d.mtime ASC, d.id ASC
		LIMIT $5
	`
	rows, err := r.db.QueryContext(ctx, query, DocumentStateNormal, before, cursor.Mtime, cursor.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &doc.Ctime, &doc.Mtime); err != nil {
			return nil, err
		}
		doc.State = DocumentStateNormal
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Touch bumps mtime of an embedding whose content did not change.
func (r *EmbeddingRepo) Touch(ctx context.Context, docID string, mtime int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE document_embeddings SET mtime = $1 WHERE document_id = $2`, mtime, docID)
	return err
}
