package leave

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go-leave-ledger/internal/domain"
	leaveerrors "go-leave-ledger/internal/leave/errors"
	"go-leave-ledger/internal/shared/apperror"
	"go-leave-ledger/internal/shared/contextutil"
	"go-leave-ledger/internal/shared/response"
	"go.uber.org/zap"
)

// ResourceLeave is the object name commands are authorized against.
const ResourceLeave = "leave"

type Authorizer interface {
	Enforce(req domain.EnforceRequest) (bool, error)
}

type Handler struct {
	service Service
	rbac    Authorizer
	logger  *zap.Logger
}

func NewHandler(service Service, rbac Authorizer, logger ...*zap.Logger) *Handler {
	l := zap.L().Named("leave.handler")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("leave.handler")
	}
	return &Handler{service: service, rbac: rbac, logger: l}
}

func (h *Handler) writeServiceError(c *gin.Context, err error) {
	httpErr := apperror.ToHTTP(err)
	contextutil.GetLogger(c.Request.Context(), h.logger).Warn("leave command failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", httpErr.Status),
		zap.String("code", httpErr.Code),
		zap.String("message", httpErr.Message),
	)
	response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
}

var knownActions = map[string]bool{
	ActionRequestLeave:      true,
	ActionCancelLeave:       true,
	ActionQueryBalance:      true,
	ActionListRequests:      true,
	ActionCheckAvailability: true,
	ActionGetAllEmployees:   true,
	ActionAvailabilityStats: true,
}

// Execute runs one structured command against the engine.
func (h *Handler) Execute(c *gin.Context) {
	var cmd Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.logger.Warn("http command validation failed", zap.Error(err))
		h.writeServiceError(c, apperror.MapValidationError(err))
		return
	}
	cmd.Action = strings.TrimSpace(cmd.Action)
	if !knownActions[cmd.Action] {
		h.writeServiceError(c, leaveerrors.ErrUnknownAction)
		return
	}

	role := domain.RoleEmployee
	if cmd.IsAdmin {
		role = domain.RoleAdmin
	}
	allowed, err := h.rbac.Enforce(domain.EnforceRequest{Role: role, Resource: ResourceLeave, Action: cmd.Action})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if !allowed {
		h.writeServiceError(c, leaveerrors.ErrAdminRequired)
		return
	}

	employeeID := ""
	if cmd.EmployeeID != nil {
		employeeID = strings.TrimSpace(*cmd.EmployeeID)
	}
	h.logger.Debug("http command",
		zap.String("action", cmd.Action),
		zap.String("employee_id", employeeID),
		zap.Bool("is_admin", cmd.IsAdmin),
	)

	data, err := h.dispatch(c, cmd, employeeID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if pg, ok := data.(paged); ok {
		response.Success(c, http.StatusOK, pg.data, &pg.meta)
		return
	}
	response.Success(c, http.StatusOK, data, nil)
}

// paged carries list data together with its envelope meta.
type paged struct {
	data any
	meta response.PaginationMeta
}

func (h *Handler) dispatch(c *gin.Context, cmd Command, employeeID string) (any, error) {
	ctx := c.Request.Context()
	p := cmd.Parameters

	switch cmd.Action {
	case ActionRequestLeave:
		endDate, err := resolveEndDate(p)
		if err != nil {
			return nil, err
		}
		return h.service.RequestLeave(ctx, employeeID, p.StartDate, endDate, p.LeaveType)

	case ActionCancelLeave:
		return h.service.CancelLeaveRequest(ctx, employeeID, p.StartDate)

	case ActionQueryBalance:
		return h.service.QueryBalance(ctx, employeeID)

	case ActionListRequests:
		pg, err := h.service.ListRequests(ctx, employeeID, p.Page, p.Limit)
		if err != nil {
			return nil, err
		}
		return paged{
			data: gin.H{"status": StatusOK, "employee_id": employeeID, "requests": pg.Requests},
			meta: response.NewPaginationMeta(int64(pg.Total), pg.Page, pg.Limit),
		}, nil

	case ActionCheckAvailability:
		return h.service.CheckAvailabilityForDate(ctx, p.StartDate, p.EndDate)

	case ActionGetAllEmployees:
		employees, err := h.service.ListEmployees(ctx)
		if err != nil {
			return nil, err
		}
		return gin.H{"status": StatusOK, "employees": employees}, nil

	case ActionAvailabilityStats:
		return h.service.AvailabilityStats(ctx)
	}
	return nil, leaveerrors.ErrUnknownAction
}

// resolveEndDate fills end_date from days when it was omitted.
func resolveEndDate(p Parameters) (string, error) {
	if p.EndDate != "" {
		return p.EndDate, nil
	}
	if p.Days <= 0 {
		return p.StartDate, nil
	}
	start, err := parseDate(p.StartDate)
	if err != nil {
		return "", err
	}
	return start.AddDate(0, 0, p.Days-1).Format(dateLayout), nil
}

// Reconcile runs one recovery pass over all in-flight sagas.
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.service.Reconcile(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, report, nil)
}
