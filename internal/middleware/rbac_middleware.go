package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/shared/apperror"
	"go-leave-ledger/internal/shared/response"
)

// RBACService is satisfied by anything that can enforce a domain.EnforceRequest.
type RBACService interface {
	Enforce(req domain.EnforceRequest) (bool, error)
}

func RBACAuthorize(service RBACService, resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		if role == "" {
			response.Error(c, http.StatusForbidden, apperror.CodeForbidden, "Missing caller role", nil)
			c.Abort()
			return
		}

		allowed, err := service.Enforce(domain.EnforceRequest{
			Role:     role,
			Resource: resource,
			Action:   action,
		})
		if err != nil {
			response.Error(c, http.StatusInternalServerError, apperror.CodeInternalError, "Authorization failed", nil)
			c.Abort()
			return
		}

		if !allowed {
			response.Error(c, http.StatusForbidden, apperror.CodeForbidden, "You do not have permission to access this resource",
				gin.H{"required": resource + ":" + action})
			c.Abort()
			return
		}
		c.Next()
	}
}
