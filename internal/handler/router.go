package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mdedup/internal/middleware"
)

type RouterDeps struct {
	Dedup     *DedupHandler
	Jobs      *JobHandler
	JWTSecret []byte
	// BatchInterval is the minimum gap between two batch requests of one user.
	BatchInterval time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	authGroup.POST("/dedup/check", deps.Dedup.Check)
	authGroup.POST("/dedup/batch", middleware.RateLimit(deps.BatchInterval), deps.Dedup.Batch)
	authGroup.GET("/dedup/similarity", deps.Dedup.Similarity)
	authGroup.GET("/dedup/runs", deps.Dedup.ListRuns)
	authGroup.GET("/dedup/runs/:id", deps.Dedup.GetRun)
	authGroup.POST("/dedup/runs/:id/apply", deps.Dedup.ApplyRun)

	if deps.Jobs != nil {
		authGroup.POST("/jobs/:name/run", middleware.RequireOperator(), deps.Jobs.Run)
	}
}
