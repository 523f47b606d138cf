package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdedup/internal/dedup"
	"github.com/xxxsen/mdedup/internal/model"
	"github.com/xxxsen/mdedup/internal/textextract"
)

const defaultPageSize = 500

type DocumentLister interface {
	ListDocuments(ctx context.Context, userID, afterID string, limit uint) ([]model.Document, error)
	ListByIDs(ctx context.Context, userID string, docIDs []string) ([]model.Document, error)
	GetByID(ctx context.Context, userID, docID string) (*model.Document, error)
}

// DocumentSource reads a user's documents and turns them into detection records.
type DocumentSource struct {
	docs     DocumentLister
	pageSize uint
}

func NewDocumentSource(docs DocumentLister, pageSize uint) *DocumentSource {
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	return &DocumentSource{docs: docs, pageSize: pageSize}
}

// LoadAll pages through every live document of userID.
func (s *DocumentSource) LoadAll(ctx context.Context, userID string) ([]dedup.DocumentRecord, error) {
	records := make([]dedup.DocumentRecord, 0)
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.docs.ListDocuments(ctx, userID, afterID, s.pageSize)
		if err != nil {
			return nil, err
		}
		for _, doc := range page {
			records = append(records, ToRecord(doc))
		}
		if uint(len(page)) < s.pageSize {
			return records, nil
		}
		afterID = page[len(page)-1].ID
	}
}

// Load returns records for docIDs. Ids that are missing or deleted are skipped.
func (s *DocumentSource) Load(ctx context.Context, userID string, docIDs []string) ([]dedup.DocumentRecord, error) {
	docs, err := s.docs.ListByIDs(ctx, userID, docIDs)
	if err != nil {
		return nil, err
	}
	if len(docs) < len(docIDs) {
		logutil.GetLogger(ctx).Warn("some requested documents were not found",
			zap.String("user_id", userID), zap.Int("requested", len(docIDs)), zap.Int("found", len(docs)))
	}
	records := make([]dedup.DocumentRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, ToRecord(doc))
	}
	return records, nil
}

func (s *DocumentSource) Get(ctx context.Context, userID, docID string) (dedup.DocumentRecord, error) {
	doc, err := s.docs.GetByID(ctx, userID, docID)
	if err != nil {
		return dedup.DocumentRecord{}, err
	}
	return ToRecord(*doc), nil
}

// ToRecord converts a stored markdown document. The title is part of the text.
func ToRecord(doc model.Document) dedup.DocumentRecord {
	text := textextract.Document(doc.Title, doc.Content)
	rec := dedup.DocumentRecord{
		ID:           doc.ID,
		Text:         text,
		ContentHash:  dedup.ContentHash(text),
		QualityScore: doc.QualityScore,
	}
	if doc.Ctime > 0 {
		rec.CreatedAt = time.UnixMilli(doc.Ctime)
	}
	return rec
}
