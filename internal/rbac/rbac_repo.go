package rbac

import "go-leave-ledger/internal/domain"

// ResourceLeave is the casbin object every command action is checked
// against; ActionReconcile guards the admin recovery endpoint.
const (
	ResourceLeave   = "leave"
	ActionReconcile = "reconcile"
)

type Repository interface {
	GetRoleParents() ([]RoleParentRow, error)
	GetRolePermissions() ([]RolePermissionRow, error)
}

// RoleParentRow makes Role inherit every permission of Parent.
type RoleParentRow struct {
	Role   string
	Parent string
}

type RolePermissionRow struct {
	Role     string
	Resource string
	Action   string
}

type staticRepository struct {
	parents []RoleParentRow
	perms   []RolePermissionRow
}

func NewStaticRepository(parents []RoleParentRow, perms []RolePermissionRow) Repository {
	return &staticRepository{parents: parents, perms: perms}
}

// NewDefaultRepository grants employees the self-service actions and admins
// everything, including the roster and stats views.
func NewDefaultRepository() Repository {
	perms := []RolePermissionRow{}
	for _, act := range []string{
		"request_leave",
		"cancel_leave",
		"query_balance",
		"list_requests",
		"check_availability_for_date",
	} {
		perms = append(perms, RolePermissionRow{Role: domain.RoleEmployee, Resource: ResourceLeave, Action: act})
	}
	for _, act := range []string{"get_all_employees", "get_availability_stats", ActionReconcile} {
		perms = append(perms, RolePermissionRow{Role: domain.RoleAdmin, Resource: ResourceLeave, Action: act})
	}
	return NewStaticRepository(
		[]RoleParentRow{{Role: domain.RoleAdmin, Parent: domain.RoleEmployee}},
		perms,
	)
}

func (r *staticRepository) GetRoleParents() ([]RoleParentRow, error) {
	return append([]RoleParentRow(nil), r.parents...), nil
}

func (r *staticRepository) GetRolePermissions() ([]RolePermissionRow, error) {
	return append([]RolePermissionRow(nil), r.perms...), nil
}
