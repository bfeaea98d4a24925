package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go-leave-ledger/internal/domain"
)

const (
	HeaderRole  = "X-Role"
	ContextRole = "role"
)

// CallerRole resolves the caller's role from the X-Role header set by the
// front end. Anything other than admin is treated as an employee.
func CallerRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := domain.RoleEmployee
		if strings.EqualFold(strings.TrimSpace(c.GetHeader(HeaderRole)), domain.RoleAdmin) {
			role = domain.RoleAdmin
		}
		c.Set(ContextRole, role)
		c.Next()
	}
}
