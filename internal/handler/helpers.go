package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdedup/internal/dedup"
	"github.com/xxxsen/mdedup/internal/middleware"
	"github.com/xxxsen/mdedup/internal/pkg/errcode"
	appErr "github.com/xxxsen/mdedup/internal/pkg/errors"
	"github.com/xxxsen/mdedup/internal/pkg/response"
	"github.com/xxxsen/mdedup/internal/schedule"
)

func getUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserIDKey)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
	)
	var cfgErr *dedup.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		response.Error(c, errcode.ErrInvalidConfig, cfgErr.Error())
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrRunPartial):
		response.Error(c, errcode.ErrRunPartial, err.Error())
	case errors.Is(err, appErr.ErrRunApplied):
		response.Error(c, errcode.ErrRunApplied, err.Error())
	case errors.Is(err, appErr.ErrConflict), errors.Is(err, schedule.ErrJobRunning):
		response.Error(c, errcode.ErrConflict, err.Error())
	case errors.Is(err, dedup.ErrUnavailable), errors.Is(err, appErr.ErrUnavailable):
		response.Error(c, errcode.ErrEmbeddingUnavailable, "embedding unavailable")
	default:
		logger.Error("request failed", zap.Error(err))
		response.Error(c, errcode.ErrInternal, "internal error")
		return
	}
	logger.Debug("request rejected", zap.Error(err))
}

func queryUint(c *gin.Context, name string, def uint) uint {
	value := c.Query(name)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return def
	}
	return uint(parsed)
}
