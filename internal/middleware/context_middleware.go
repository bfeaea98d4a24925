package middleware

import (
	"go-leave-ledger/internal/shared/contextutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextLogger attaches a request-scoped logger carrying the request id and
// caller role. It runs after RequestID and CallerRole.
func ContextLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetString(contextutil.RequestIDKey)
		role := c.GetString(ContextRole)

		reqLogger := logger.With(
			zap.String("request_id", rid),
			zap.String("role", role),
		)

		ctx := c.Request.Context()
		ctx = contextutil.WithRole(ctx, role)
		ctx = contextutil.WithLogger(ctx, reqLogger)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
