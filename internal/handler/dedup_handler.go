package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mdedup/internal/dedup"
	"github.com/xxxsen/mdedup/internal/model"
	"github.com/xxxsen/mdedup/internal/pkg/errcode"
	"github.com/xxxsen/mdedup/internal/pkg/response"
	"github.com/xxxsen/mdedup/internal/service"
)

const (
	defaultRunPageSize = 20
	maxRunPageSize     = 100
	maxCheckTextBytes  = 1 << 20
)

type DedupAPI interface {
	CheckDuplicate(ctx context.Context, userID, text string, threshold float64) ([]dedup.Match, error)
	BatchDeduplicate(ctx context.Context, userID string, docIDs []string, threshold float64) (*service.BatchRun, error)
	Similarity(ctx context.Context, userID, idA, idB string) (*dedup.SimilarityReport, error)
	ListRuns(ctx context.Context, userID string, limit, offset uint) ([]model.DedupRun, error)
	GetRun(ctx context.Context, userID, runID string) (*model.DedupRun, error)
	ApplyRemoval(ctx context.Context, userID, runID string) (*service.ApplyResult, error)
}

type DedupHandler struct {
	dedup DedupAPI
}

func NewDedupHandler(api DedupAPI) *DedupHandler {
	return &DedupHandler{dedup: api}
}

type checkRequest struct {
	Text      string   `json:"text"`
	Threshold *float64 `json:"threshold"`
}

type batchRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Threshold   *float64 `json:"threshold"`
}

type batchResponse struct {
	RunID      string            `json:"run_id"`
	Total      int               `json:"total"`
	Unique     int               `json:"unique"`
	Duplicates int               `json:"duplicates"`
	Groups     []dedup.Group     `json:"groups"`
	Partial    bool              `json:"partial"`
	Degraded   bool              `json:"degraded"`
	Plan       dedup.RemovalPlan `json:"plan"`
	Stats      dedup.BatchStats  `json:"stats"`
	Failed     map[string]string `json:"failed,omitempty"`
}

func thresholdOf(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func (h *DedupHandler) Check(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if len(req.Text) > maxCheckTextBytes {
		response.Error(c, errcode.ErrInvalid, "text too large")
		return
	}
	matches, err := h.dedup.CheckDuplicate(c.Request.Context(), getUserID(c), req.Text, thresholdOf(req.Threshold))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"matches": matches})
}

func (h *DedupHandler) Batch(c *gin.Context) {
	var req batchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid request")
			return
		}
	}
	ids := make([]string, 0, len(req.DocumentIDs))
	for _, id := range req.DocumentIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(req.DocumentIDs) > 0 && len(ids) == 0 {
		response.Error(c, errcode.ErrInvalid, "document_ids are empty")
		return
	}
	run, err := h.dedup.BatchDeduplicate(c.Request.Context(), getUserID(c), ids, thresholdOf(req.Threshold))
	if err != nil {
		handleError(c, err)
		return
	}
	res := run.Result
	response.Success(c, batchResponse{
		RunID:      run.RunID,
		Total:      res.Total,
		Unique:     res.Unique,
		Duplicates: res.Duplicates,
		Groups:     res.Groups,
		Partial:    res.Partial,
		Degraded:   res.Degraded,
		Plan:       run.Plan,
		Stats:      res.Stats,
		Failed:     res.Failed,
	})
}

func (h *DedupHandler) Similarity(c *gin.Context) {
	a := strings.TrimSpace(c.Query("a"))
	b := strings.TrimSpace(c.Query("b"))
	if a == "" || b == "" {
		response.Error(c, errcode.ErrInvalid, "a and b are required")
		return
	}
	report, err := h.dedup.Similarity(c.Request.Context(), getUserID(c), a, b)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *DedupHandler) ListRuns(c *gin.Context) {
	limit := queryUint(c, "limit", defaultRunPageSize)
	if limit == 0 || limit > maxRunPageSize {
		limit = maxRunPageSize
	}
	offset := queryUint(c, "offset", 0)
	runs, err := h.dedup.ListRuns(c.Request.Context(), getUserID(c), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	next := ""
	if uint(len(runs)) == limit {
		next = strconv.FormatUint(uint64(offset+limit), 10)
	}
	response.Page(c, runs, next)
}

func (h *DedupHandler) GetRun(c *gin.Context) {
	run, err := h.dedup.GetRun(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, run)
}

func (h *DedupHandler) ApplyRun(c *gin.Context) {
	res, err := h.dedup.ApplyRemoval(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}
