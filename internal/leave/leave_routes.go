package leave

import (
	"go-leave-ledger/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(
	r *gin.RouterGroup,
	handler *Handler,
	rbacService middleware.RBACService,
	extra ...gin.HandlerFunc,
) {
	commands := append(append([]gin.HandlerFunc{}, extra...), handler.Execute)
	r.POST("/commands", commands...)

	admin := r.Group("/admin")
	{
		admin.POST("/reconcile", middleware.RBACAuthorize(rbacService, ResourceLeave, "reconcile"), handler.Reconcile)
	}
}
