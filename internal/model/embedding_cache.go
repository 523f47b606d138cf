package model

// EmbeddingCache is a provider response keyed by model, task type and text hash.
// It is independent of documents, so identical texts share one entry.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}
