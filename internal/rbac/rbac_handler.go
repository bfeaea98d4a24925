package rbac

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go-leave-ledger/internal/domain"
	"go-leave-ledger/internal/shared/apperror"
	"go-leave-ledger/internal/shared/response"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Enforce lets the command front end check an action before it builds the
// command.
func (h *Handler) Enforce(c *gin.Context) {
	var req domain.EnforceRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, apperror.CodeValidation, "Invalid input", err.Error())
		return
	}

	req.Role = strings.TrimSpace(req.Role)
	req.Resource = strings.TrimSpace(req.Resource)
	req.Action = strings.TrimSpace(req.Action)

	if req.Role == "" || req.Resource == "" || req.Action == "" {
		response.Error(c, http.StatusBadRequest, apperror.CodeValidation, "role, resource, and action are required", nil)
		return
	}

	allowed, err := h.service.Enforce(req)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, apperror.CodeInternalError, err.Error(), nil)
		return
	}

	response.Success(c, http.StatusOK, domain.EnforceResponse{Allowed: allowed}, nil)
}
