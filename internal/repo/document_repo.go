package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mdedup/internal/model"
	"github.com/xxxsen/mdedup/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mdedup/internal/pkg/errors"
)

const (
	DocumentStateNormal  = 1
	DocumentStateDeleted = 2
)

var documentFields = []string{"id", "user_id", "title", "content", "quality_score", "state", "ctime", "mtime"}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":      doc.ID,
		"user_id": doc.UserID,
		"title":   doc.Title,
		"content": doc.Content,
		"state":   doc.State,
		"ctime":   doc.Ctime,
		"mtime":   doc.Mtime,
	}
	if doc.QualityScore != nil {
		data["quality_score"] = *doc.QualityScore
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, userID, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id":      docID,
		"user_id": userID,
		"state":   DocumentStateNormal,
	}
	docs, err := r.selectDocuments(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &docs[0], nil
}

// ListDocuments pages through a user's live documents in id order. Pass the
// last id of the previous page as afterID; an empty page means the end.
func (r *DocumentRepo) ListDocuments(ctx context.Context, userID, afterID string, limit uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"state":    DocumentStateNormal,
		"_orderby": "id asc",
	}
	if afterID != "" {
		where["id >"] = afterID
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.selectDocuments(ctx, where)
}

func (r *DocumentRepo) ListByIDs(ctx context.Context, userID string, docIDs []string) ([]model.Document, error) {
	if len(docIDs) == 0 {
		return []model.Document{}, nil
	}
	ids := make([]interface{}, 0, len(docIDs))
	for _, id := range docIDs {
		ids = append(ids, id)
	}
	where := map[string]interface{}{
		"user_id":  userID,
		"state":    DocumentStateNormal,
		"id in":    ids,
		"_orderby": "id asc",
	}
	return r.selectDocuments(ctx, where)
}

// SoftDelete marks documents deleted and reports how many were live.
func (r *DocumentRepo) SoftDelete(ctx context.Context, userID string, docIDs []string) (int64, error) {
	if len(docIDs) == 0 {
		return 0, nil
	}
	ids := make([]interface{}, 0, len(docIDs))
	for _, id := range docIDs {
		ids = append(ids, id)
	}
	where := map[string]interface{}{
		"user_id": userID,
		"state":   DocumentStateNormal,
		"id in":   ids,
	}
	update := map[string]interface{}{
		"state": DocumentStateDeleted,
		"mtime": time.Now().UnixMilli(),
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *DocumentRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT user_id FROM documents WHERE state = $1 ORDER BY user_id`
	rows, err := r.db.QueryContext(ctx, query, DocumentStateNormal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *DocumentRepo) selectDocuments(ctx context.Context, where map[string]interface{}) ([]model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		var doc model.Document
		var quality sql.NullFloat64
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &quality, &doc.State, &doc.Ctime, &doc.Mtime); err != nil {
			return nil, err
		}
		if quality.Valid {
			q := quality.Float64
			doc.QualityScore = &q
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
