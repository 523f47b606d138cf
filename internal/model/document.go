package model

type Document struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	// QualityScore is an optional ranking hint used when picking a canonical copy.
	QualityScore *float64 `json:"quality_score,omitempty"`
	State        int      `json:"state"`
	Ctime        int64    `json:"ctime"`
	Mtime        int64    `json:"mtime"`
}
