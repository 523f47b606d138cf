package model

const (
	DedupRunStateCompleted = 1
	DedupRunStateApplied   = 2
)

// DedupRun is a persisted batch detection run.
type DedupRun struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	NearThreshold float64      `json:"near_threshold"`
	Total         int          `json:"total"`
	Unique        int          `json:"unique"`
	Duplicates    int          `json:"duplicates"`
	Partial       bool         `json:"partial"`
	Degraded      bool         `json:"degraded"`
	State         int          `json:"state"`
	Stats         string       `json:"stats"`
	ReportKey     string       `json:"report_key"`
	Ctime         int64        `json:"ctime"`
	Mtime         int64        `json:"mtime"`
	Groups        []DedupGroup `json:"groups,omitempty"`
}

type DedupGroup struct {
	RunID       string   `json:"run_id"`
	Index       int      `json:"index"`
	CanonicalID string   `json:"canonical_id"`
	MemberIDs   []string `json:"member_ids"`
	Tiers       []string `json:"tiers"`
}
