package model

// DocumentEmbedding is the stored vector for one document. ContentHash is the
// hash of the text that was embedded, so stale vectors can be detected.
type DocumentEmbedding struct {
	DocumentID  string    `json:"document_id"`
	UserID      string    `json:"user_id"`
	Embedding   []float32 `json:"embedding"`
	ContentHash string    `json:"content_hash"`
	Mtime       int64     `json:"mtime"`
}
