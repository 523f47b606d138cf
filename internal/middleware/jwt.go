package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mdedup/internal/pkg/errcode"
	"github.com/xxxsen/mdedup/internal/pkg/jwt"
	"github.com/xxxsen/mdedup/internal/pkg/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextScopeKey  = "token_scope"
)

func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextScopeKey, claims.Scope)
		c.Next()
	}
}

// RequireOperator rejects tokens that were not minted with the operator scope.
// It must run after JWTAuth.
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextScopeKey) != jwt.ScopeOperator {
			response.Error(c, errcode.ErrForbidden, "operator token required")
			c.Abort()
			return
		}
		c.Next()
	}
}
