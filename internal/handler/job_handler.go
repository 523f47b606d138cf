package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mdedup/internal/pkg/response"
)

type JobRunner interface {
	RunNow(ctx context.Context, name string) error
}

// JobHandler lets an operator trigger a scheduled job outside its spec.
type JobHandler struct {
	jobs JobRunner
}

func NewJobHandler(jobs JobRunner) *JobHandler {
	return &JobHandler{jobs: jobs}
}

func (h *JobHandler) Run(c *gin.Context) {
	name := c.Param("name")
	if err := h.jobs.RunNow(c.Request.Context(), name); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"job": name})
}
